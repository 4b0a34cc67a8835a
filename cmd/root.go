package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facecloak/internal/config"
	"github.com/kozaktomas/facecloak/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "facecloak",
	Short: "Blur known faces in web page images",
	Long: `facecloak finds images on web pages that show a face from a fixed set
of reference exemplars and obfuscates them. It runs as an HTTP service (fetch
proxy, match and cloak endpoints) or as a one-shot CLI over a single page.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		level, format := cfg.Log.Level, cfg.Log.Format
		if cmd.Flags().Changed("log-level") {
			level = mustGetString(cmd, "log-level")
		}
		if cmd.Flags().Changed("log-format") {
			format = mustGetString(cmd, "log-format")
		}
		logging.Init(level, format)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json); overrides LOG_FORMAT")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
