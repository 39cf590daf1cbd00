// Package main is the flow command: it refines clunky wording in prose
// using a masked language model sidecar.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flow",
	Short: "Find and fix clunky words",
	Long: "flow flags words a masked language model finds surprising, proposes " +
		"more fluent replacements and applies those that keep the meaning.",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var global struct {
	configPath   string
	keepListPath string
	modelURL     string
	redisAddr    string
	dbPath       string
	logFormat    string
	verbose      bool
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&global.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&global.keepListPath, "keep-list", "", "YAML file of protected words")
	pf.StringVar(&global.modelURL, "model-url", "", "Model sidecar base URL (overrides FLOW_MODEL_URL and config)")
	pf.StringVar(&global.redisAddr, "redis", "", "Redis address for the embedding cache and shared keep-list")
	pf.StringVar(&global.dbPath, "db", "", "SQLite run log path (overrides config)")
	pf.StringVar(&global.logFormat, "log-format", "text", "Log format: text or json")
	pf.BoolVarP(&global.verbose, "verbose", "v", false, "Log every pipeline decision")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
