package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var envFiles []string

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "mempool-engine",
	Short: "Opportunistic mempool transaction engine",
	Long: `Mempool engine that watches pending transactions on an EVM chain,
decodes swaps and liquidity additions on known venues, scores the resulting
opportunities against token safety, fees and manipulation signals, and
executes the best ones with staged take-profit exits.

Configuration is read from the environment. Env files given with --env-file
are loaded first and re-read on SIGHUP.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		loadEnvFiles()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"},
		"Env files to load before reading configuration")
}

func loadEnvFiles() {
	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: env file %s not loaded: %v\n", f, err)
		}
	}
}
