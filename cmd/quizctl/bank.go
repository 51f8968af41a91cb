package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/quizbot/internal/bank"
)

func newBankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Inspect the question bank",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the question bank, then print per-level counts",
		Args:  cobra.NoArgs,
		RunE:  runBankValidate,
	})
	return cmd
}

func runBankValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	b, err := bank.Load(cfg.BankPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	total := 0
	for _, topic := range b.Topics() {
		counts := b.Count(topic)
		fmt.Fprintf(out, "%-24s easy=%d medium=%d hard=%d\n",
			topic, counts[bank.Easy], counts[bank.Medium], counts[bank.Hard])
		for _, n := range counts {
			total += n
		}
	}
	fmt.Fprintf(out, "ok: %d topics, %d questions\n", len(b.Topics()), total)
	return nil
}
