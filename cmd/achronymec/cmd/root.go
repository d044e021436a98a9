package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/achronyme/achronyme/pkg/achronyme"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "achronymec",
	Short: "Bytecode runner and disassembler for Achronyme programs.",
	Long: "achronymec loads a compiled Achronyme bytecode program (JSON, as " +
		"emitted by package compile) and runs it or disassembles it.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if GetFlag(cmd, "verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetFlag reads a persistent bool flag, walking up to the root command if
// the subcommand itself did not register it.
func GetFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false
	}
	return v
}

// GetString reads a persistent string flag.
func GetString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return v
}

// GetInt reads a persistent int flag.
func GetInt(cmd *cobra.Command, name string) int {
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return 0
	}
	return v
}

// configFromFlags builds an achronyme.Config from the persistent flags
// common to every subcommand that runs a program.
func configFromFlags(cmd *cobra.Command) achronyme.Config {
	cfg := achronyme.DefaultConfig()
	if GetFlag(cmd, "gnark") {
		cfg.ProofHandler = achronyme.ProofHandlerGnark
	}
	cfg.CacheDir = GetString(cmd, "cache-dir")
	if ceiling := GetInt(cmd, "unroll"); ceiling > 0 {
		cfg.UnrollCeiling = ceiling
	}
	cfg.StressGC = GetFlag(cmd, "stress-gc")
	return cfg
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase logging verbosity")
	rootCmd.PersistentFlags().Bool("gnark", false, "prove blocks use the gnark/Groth16 back-end instead of the local verify-only handler")
	rootCmd.PersistentFlags().String("cache-dir", "", "directory for cached proving/verifying keys (gnark handler only)")
	rootCmd.PersistentFlags().Int("unroll", 0, "override the circuit loop-unroll ceiling (0 keeps the default)")
	rootCmd.PersistentFlags().Bool("stress-gc", false, "collect the heap before every allocation, for exercising GC correctness")
}
