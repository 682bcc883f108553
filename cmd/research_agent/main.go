// Package main provides the research_agent CLI: report generation, document assembly,
// section display and the HTTP API server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/supervity/company-research/internal/config"
	"github.com/supervity/company-research/internal/logging"
)

var (
	configPath string
	verbose    bool

	// Set by PersistentPreRunE for every subcommand.
	appCfg *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "research_agent",
	Short: "Company research report generator",
	Long: `research_agent generates multi-section company research reports with a language model,
stores each section as markdown and assembles them into an HTML/PDF document.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML or JSON config file (default: ./research.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Verbose = true
	}
	l, err := logging.New(logging.Options{Verbose: cfg.Verbose, Console: true})
	if err != nil {
		return err
	}
	appCfg, logger = cfg, l
	return nil
}

// exitError carries a process exit code out of a command. An empty message prints nothing.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// exitCode maps a command error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	err := rootCmd.Execute()
	if err != nil && err.Error() != "" {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
