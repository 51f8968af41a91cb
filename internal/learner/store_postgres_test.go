package learner_test

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/quizbot/internal/learner"
	"github.com/p-n-ai/quizbot/internal/platform/config"
	"github.com/p-n-ai/quizbot/internal/platform/database"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("quiz"),
		postgres.WithUsername("quiz"),
		postgres.WithPassword("quiz"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}

	db, err := database.Open(ctx, config.DatabaseConfig{URL: dsn, MaxConns: 10, MinConns: 1})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	runStoreSuite(t, func(t *testing.T) learner.Store {
		if _, err := db.Pool.Exec(ctx, `TRUNCATE attempts, topic_weights, learners`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		s, err := learner.NewPostgresStore(db.Pool)
		if err != nil {
			t.Fatalf("NewPostgresStore() error = %v", err)
		}
		return s
	})
}

func TestNewPostgresStore_NilPool(t *testing.T) {
	if _, err := learner.NewPostgresStore(nil); err == nil {
		t.Fatal("NewPostgresStore(nil) should return error")
	}
}
