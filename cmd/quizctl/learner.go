package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/quizbot/internal/app"
)

func newLearnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learner",
		Short: "Inspect learners",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a learner's level, streaks and topic weights",
		Args:  cobra.ExactArgs(1),
		RunE:  runLearnerShow,
	})
	return cmd
}

func runLearnerShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.Open(cmd.Context(), cfg, app.ReadOnly())
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.Engine.Summary(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Learner:      %s (%s)\n", s.LearnerID, s.Name)
	fmt.Fprintf(out, "Difficulty:   %s\n", s.Difficulty)
	fmt.Fprintf(out, "Active topic: %s\n", s.ActiveTopic)
	fmt.Fprintf(out, "Streaks:      %d correct, %d wrong\n", s.CorrectStreak, s.WrongStreak)
	fmt.Fprintln(out, "Weights:")
	for _, w := range s.WeightDetail {
		fmt.Fprintf(out, "  %-22s %.2f\n", w.Topic, w.Value)
	}
	return nil
}
