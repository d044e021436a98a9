package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var disassembleCmd = &cobra.Command{
	Use:     "disassemble <bytecode.json>",
	Aliases: []string{"disasm"},
	Short:   "Print a compiled bytecode program's prototypes as readable instruction listings.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := loadProgram(args[0])
		if err != nil {
			return err
		}

		for i, p := range prog.Protos {
			entry := ""
			if i == prog.Entry {
				entry = " (entry)"
			}
			fmt.Printf("proto %d %q%s  arity=%d maxSlots=%d upvalues=%d\n", i, p.Name, entry, p.Arity, p.MaxSlots, p.UpvalueCnt)
			for pc, in := range p.Code {
				fmt.Printf("  %4d  %-16s A=%-4d B=%-4d C=%-4d Arg=%-6d line=%d\n",
					pc, in.Op.String(), in.A, in.B, in.C, in.Arg, in.Line)
			}
			if len(p.ProveBlocks) > 0 {
				fmt.Printf("  %d prove block(s)\n", len(p.ProveBlocks))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disassembleCmd)
}
