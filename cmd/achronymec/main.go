// Command achronymec is the toolchain's command-line front end: it loads
// already-compiled bytecode (the output of package compile — lexing and
// parsing source text into a syntax tree is this module's one external
// collaborator, so achronymec never reads .ach source directly) and runs
// or disassembles it.
package main

import "github.com/achronyme/achronyme/cmd/achronymec/cmd"

func main() {
	cmd.Execute()
}
