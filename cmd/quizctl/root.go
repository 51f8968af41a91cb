package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/p-n-ai/quizbot/internal/platform/config"
	"github.com/p-n-ai/quizbot/internal/platform/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quizctl",
		Short:         "Administer the adaptive quiz engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			slog.SetDefault(logger.NewWithWriter(cmd.ErrOrStderr(), config.LogConfig{Level: level, Format: "text"}))
		},
	}

	root.PersistentFlags().String("bank", "", "Path to the question bank file or directory (overrides QUIZ_BANK_PATH)")
	root.PersistentFlags().String("store", "", "Learner store driver: memory, sqlite, postgres or redis (overrides QUIZ_STORE_DRIVER)")
	root.PersistentFlags().String("db", "", "SQLite file, PostgreSQL URL or Redis URL for the selected driver")
	root.PersistentFlags().String("log-level", "warn", "Log level written to stderr")

	root.AddCommand(newBankCmd())
	root.AddCommand(newLearnerCmd())
	root.AddCommand(newAttemptsCmd())
	return root
}

// loadConfig reads the environment and applies flag overrides, flags taking
// the highest priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if p, _ := cmd.Flags().GetString("bank"); p != "" {
		cfg.BankPath = p
	}
	if d, _ := cmd.Flags().GetString("store"); d != "" {
		cfg.Store.Driver = d
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		switch cfg.Store.Driver {
		case config.DriverPostgres:
			cfg.Database.URL = db
		case config.DriverRedis:
			cfg.Cache.URL = db
		case config.DriverMemory:
			cfg.Snapshot.Path = db
		default:
			cfg.SQLite.Path = db
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
