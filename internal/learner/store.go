// Package learner persists per-learner quiz state: difficulty, streaks,
// active topic, per-topic sampling weights and the append-only attempt log.
package learner

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store. It can be persisted
// across restarts with a Snapshotter.
type MemoryStore struct {
	learners map[string]*memRecord
	mu       sync.RWMutex
	now      func() time.Time
}

type memRecord struct {
	mu       sync.Mutex
	learner  Learner
	weights  map[string]Weight
	attempts []Attempt
}

// NewMemoryStore creates a new in-memory learner store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		learners: make(map[string]*memRecord),
		now:      time.Now,
	}
}

func (s *MemoryStore) EnsureLearner(_ context.Context, id, name string, topics []string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("learner id is required")
	}

	s.mu.Lock()
	rec, ok := s.learners[id]
	if !ok {
		rec = &memRecord{
			learner: newLearner(id, name, s.now()),
			weights: make(map[string]Weight, len(topics)),
		}
		s.learners[id] = rec
	}
	s.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	now := s.now()
	for _, t := range topics {
		if _, exists := rec.weights[t]; !exists {
			rec.weights[t] = Weight{Topic: t, Value: InitialWeight, UpdatedAt: now}
		}
	}
	return !ok, nil
}

func (s *MemoryStore) GetLearner(_ context.Context, id string) (Learner, error) {
	rec, err := s.record(id)
	if err != nil {
		return Learner{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.learner, nil
}

func (s *MemoryStore) UpdateLearner(ctx context.Context, id string, u Update) error {
	return s.Atomically(ctx, id, func(ctx context.Context, tx Tx) error {
		return tx.UpdateLearner(ctx, u)
	})
}

func (s *MemoryStore) GetWeights(_ context.Context, id string) (map[string]float64, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make(map[string]float64, len(rec.weights))
	for t, w := range rec.weights {
		out[t] = w.Value
	}
	return out, nil
}

func (s *MemoryStore) ListWeights(_ context.Context, id string) ([]Weight, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return sortedWeights(rec.weights), nil
}

func (s *MemoryStore) AdjustWeight(ctx context.Context, id, topic string, delta float64) (float64, error) {
	var w float64
	err := s.Atomically(ctx, id, func(ctx context.Context, tx Tx) error {
		var err error
		w, err = tx.AdjustWeight(ctx, topic, delta)
		return err
	})
	return w, err
}

func (s *MemoryStore) AppendAttempt(ctx context.Context, a Attempt) error {
	return s.Atomically(ctx, a.LearnerID, func(ctx context.Context, tx Tx) error {
		return tx.AppendAttempt(ctx, a)
	})
}

func (s *MemoryStore) ListAttempts(_ context.Context, id string) ([]Attempt, error) {
	rec, err := s.record(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return slices.Clone(rec.attempts), nil
}

// Atomically holds the learner's lock for the duration of fn and applies the
// staged changes only when fn succeeds.
func (s *MemoryStore) Atomically(ctx context.Context, id string, fn func(ctx context.Context, tx Tx) error) error {
	rec, err := s.record(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	tx := &memTx{
		learner: rec.learner,
		weights: maps.Clone(rec.weights),
		now:     s.now,
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	rec.learner = tx.learner
	rec.weights = tx.weights
	rec.attempts = append(rec.attempts, tx.attempts...)
	return nil
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) record(id string) (*memRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.learners[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// memTx stages changes against copies of a record.
type memTx struct {
	learner  Learner
	weights  map[string]Weight
	attempts []Attempt
	now      func() time.Time
}

func (tx *memTx) Learner() Learner {
	return tx.learner
}

func (tx *memTx) UpdateLearner(_ context.Context, u Update) error {
	u.apply(&tx.learner)
	return nil
}

func (tx *memTx) AdjustWeight(_ context.Context, topic string, delta float64) (float64, error) {
	cur, ok := tx.weights[topic]
	if !ok {
		cur = Weight{Topic: topic, Value: InitialWeight}
	}
	cur.Value = ClampWeight(cur.Value + delta)
	cur.UpdatedAt = tx.now()
	tx.weights[topic] = cur
	return cur.Value, nil
}

func (tx *memTx) AppendAttempt(_ context.Context, a Attempt) error {
	if err := prepareAttempt(&a, tx.learner.ID, tx.now()); err != nil {
		return err
	}
	tx.attempts = append(tx.attempts, a)
	return nil
}

// prepareAttempt fills defaults and checks the attempt belongs to learnerID.
func prepareAttempt(a *Attempt, learnerID string, now time.Time) error {
	if a.LearnerID == "" {
		a.LearnerID = learnerID
	}
	if a.LearnerID != learnerID {
		return fmt.Errorf("attempt learner %q does not match %q", a.LearnerID, learnerID)
	}
	if a.QuestionID == "" {
		return fmt.Errorf("attempt question_id is required")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	return nil
}

func sortedWeights(m map[string]Weight) []Weight {
	out := slices.Collect(maps.Values(m))
	slices.SortFunc(out, func(a, b Weight) int {
		return strings.Compare(a.Topic, b.Topic)
	})
	return out
}
