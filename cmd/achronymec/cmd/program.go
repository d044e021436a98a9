package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/achronyme/achronyme/internal/achronyme/compile"
)

// loadProgram reads a JSON-encoded compile.Program from path — the
// bytecode a front-end (lexer, parser, this module's one external
// collaborator) would hand off after calling package compile itself.
// achronymec consumes that output directly; it never parses Achronyme
// source text.
func loadProgram(path string) (*compile.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var prog compile.Program
	if err := json.Unmarshal(data, &prog); err != nil {
		return nil, fmt.Errorf("parsing bytecode JSON: %w", err)
	}
	return &prog, nil
}
