package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "ace-cli",
	Short: "CLI for the ace self-improving playbook engine",
	Long: `A command-line interface for ace-go that runs queries through the
closed learning loop and inspects the accumulated playbook.

The CLI provides:
- One-shot queries that generate, reflect and curate in a single pass
- Playbook inspection: listing, statistics and text search
- SQLite-backed persistence between invocations`,
	Version: "0.1.0",
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite playbook snapshot (overrides config)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(playbookCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
