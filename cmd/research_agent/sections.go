package main

import (
	"github.com/spf13/cobra"

	"github.com/supervity/company-research/internal/observability"
	"github.com/supervity/company-research/internal/sections"
)

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List report sections and supported languages",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		observability.NewPrinter(cmd.OutOrStdout()).PrintSections(sections.Default())
	},
}

func init() {
	rootCmd.AddCommand(sectionsCmd)
}
