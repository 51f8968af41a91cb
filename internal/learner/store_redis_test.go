package learner_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/p-n-ai/quizbot/internal/learner"
	"github.com/p-n-ai/quizbot/internal/platform/cache"
	"github.com/p-n-ai/quizbot/internal/platform/config"
)

// TestRedisStore runs against a live server named by QUIZ_TEST_REDIS_URL.
// Every subtest uses a fresh key prefix so runs never collide.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("QUIZ_TEST_REDIS_URL")
	if url == "" {
		t.Skip("QUIZ_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	c, err := cache.Open(ctx, config.CacheConfig{URL: url})
	if err != nil {
		t.Fatalf("cache.Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	runStoreSuite(t, func(t *testing.T) learner.Store {
		prefix := "quiztest:" + uuid.NewString()
		t.Cleanup(func() {
			keys, _ := c.Client.Keys(ctx, prefix+":*").Result()
			if len(keys) > 0 {
				c.Client.Del(ctx, keys...)
			}
		})
		s, err := learner.NewRedisStore(c.Client, prefix)
		if err != nil {
			t.Fatalf("NewRedisStore() error = %v", err)
		}
		return s
	})
}

func TestNewRedisStore_NilClient(t *testing.T) {
	if _, err := learner.NewRedisStore(nil, ""); err == nil {
		t.Fatal("NewRedisStore(nil) should return error")
	}
}
