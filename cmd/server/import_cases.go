package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vytor/simclinic/internal/catalog"
)

var importCasesCmd = &cobra.Command{
	Use:   "import-cases <file.yaml>",
	Short: "Load case definitions into the database",
	Long: `Read a YAML document with a top-level "cases" list and upsert every case.
The whole file is checked first; nothing is written if any case is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportCases,
}

func runImportCases(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	cases, err := catalog.Parse(data)
	if err != nil {
		return err
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	n, err := catalog.Import(context.Background(), a.cases, cases)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d case(s)\n", n)
	return nil
}
