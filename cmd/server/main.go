package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "simclinic",
	Short: "Simulated clinical encounter engine",
	Long: `simclinic runs supervised practice sessions against simulated patients,
scores them through the assessment oracle and tracks each student's
progress through the three internship stages.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(importCasesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
