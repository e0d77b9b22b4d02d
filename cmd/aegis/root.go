package main

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - deterministic decision firewall for AI outputs",
	Long: `Aegis evaluates AI outputs before they are acted on and returns one of
four verdicts: ALLOW, REQUIRE_EVIDENCE, REQUIRE_HUMAN_REVIEW or BLOCK.

Decisions are deterministic for a given policy, explained, and recorded in a
tamper-evident audit trail. Policy modes tailor the firewall to general AI,
financial services, healthcare and legal deployments.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format (text, json, csv, junit)")
}
