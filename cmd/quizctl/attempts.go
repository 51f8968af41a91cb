package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/quizbot/internal/app"
	"github.com/p-n-ai/quizbot/internal/report"
)

func newAttemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Work with the attempt log",
	}
	export := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a learner's attempts and weights to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  runAttemptsExport,
	}
	export.Flags().String("out", "", "Output .xlsx path (default <id>.xlsx)")
	cmd.AddCommand(export)
	return cmd
}

func runAttemptsExport(cmd *cobra.Command, args []string) error {
	id := args[0]
	path, _ := cmd.Flags().GetString("out")
	if path == "" {
		path = id + ".xlsx"
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.Open(cmd.Context(), cfg, app.ReadOnly())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	s, err := a.Engine.Summary(ctx, id)
	if err != nil {
		return err
	}
	attempts, err := a.Engine.Attempts(ctx, id)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := report.WriteXLSX(f, s, attempts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d attempts to %s\n", len(attempts), path)
	return nil
}
