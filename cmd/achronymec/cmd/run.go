package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/achronyme/achronyme/pkg/achronyme"
)

var runCmd = &cobra.Command{
	Use:   "run <bytecode.json>",
	Short: "Load a compiled bytecode program and run its entry point.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prog, err := loadProgram(args[0])
		if err != nil {
			return err
		}

		vm, err := achronyme.New(configFromFlags(cmd))
		if err != nil {
			return err
		}

		loaded, err := vm.LoadCompiled(prog)
		if err != nil {
			return err
		}

		result, err := vm.Run(loaded)
		if err != nil {
			return err
		}
		fmt.Println(result.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
