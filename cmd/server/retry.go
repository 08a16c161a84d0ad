package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vytor/simclinic/internal/services"
)

var retryMinAge time.Duration

var retryCmd = &cobra.Command{
	Use:   "retry-assessments",
	Short: "Score completed sessions that have no assessment",
	Long: `Run one sweep over COMPLETED sessions without an assessment and score
each of them inline. Sessions younger than --min-age are left alone so an
in-flight completion is not scored twice.`,
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().DurationVar(&retryMinAge, "min-age", 0, "Skip sessions ended more recently than this (default SWEEP_MIN_AGE)")
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	minAge := a.cfg.SweepMinAge
	if cmd.Flags().Changed("min-age") {
		if retryMinAge < 0 {
			return fmt.Errorf("--min-age cannot be negative")
		}
		minAge = retryMinAge
	}

	sweeper := services.NewAssessmentSweeper(a.sessions, a.assessSvc, nil, minAge, a.cfg.SweepInterval, nil)
	n, err := sweeper.RunOnce(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "retried %d session(s)\n", n)
	return nil
}
