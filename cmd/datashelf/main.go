package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/vaibhavdavedev/datashelf/internal/common"
)

var (
	// Command-line flags
	configFile string
	serverPort int
	serverHost string

	// Global state shared by subcommands
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "datashelf",
	Short: "DataShelf catalog crawl and serve platform",
	Long: `DataShelf crawls a retail catalog, normalizes the extracted records
into a relational store, and serves them through a caching edge API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Startup sequence: config (defaults -> file -> env), CLI
		// overrides, then logger.
		path := configFile
		if path == "" {
			if _, err := os.Stat("datashelf.toml"); err == nil {
				path = "datashelf.toml"
			}
		}

		var err error
		config, err = common.LoadFromFile(path)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		common.ApplyFlagOverrides(config, serverPort, serverHost)
		logger = common.SetupLogger(config)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Listen port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Listen host (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	defer common.StopLogger()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
