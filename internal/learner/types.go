package learner

import (
	"context"
	"errors"
	"time"

	"github.com/p-n-ai/quizbot/internal/bank"
)

const (
	// InitialWeight is the sampling weight every topic starts with.
	InitialWeight = 1.0
	// MinWeight is the floor applied after every weight adjustment.
	MinWeight = 0.1
)

// ErrNotFound is returned when a learner does not exist.
var ErrNotFound = errors.New("learner not found")

// Learner is the persisted skill state of one learner.
// CorrectStreak and WrongStreak are never both nonzero.
type Learner struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Difficulty    bank.Difficulty `json:"difficulty"`
	CorrectStreak int             `json:"correct_streak"`
	WrongStreak   int             `json:"wrong_streak"`
	ActiveTopic   string          `json:"active_topic"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Update is a partial update of a learner. Nil fields are left unchanged.
type Update struct {
	Difficulty    *bank.Difficulty
	CorrectStreak *int
	WrongStreak   *int
	ActiveTopic   *string
}

func (u Update) apply(l *Learner) {
	if u.Difficulty != nil {
		l.Difficulty = *u.Difficulty
	}
	if u.CorrectStreak != nil {
		l.CorrectStreak = *u.CorrectStreak
	}
	if u.WrongStreak != nil {
		l.WrongStreak = *u.WrongStreak
	}
	if u.ActiveTopic != nil {
		l.ActiveTopic = *u.ActiveTopic
	}
}

// Weight is the sampling propensity of one topic for one learner.
type Weight struct {
	Topic     string    `json:"topic"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Attempt is an immutable answer record.
type Attempt struct {
	ID         string    `json:"id"`
	LearnerID  string    `json:"learner_id"`
	Topic      string    `json:"topic"`
	QuestionID string    `json:"question_id"`
	Correct    bool      `json:"correct"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClampWeight applies the weight floor.
func ClampWeight(w float64) float64 {
	if w < MinWeight {
		return MinWeight
	}
	return w
}

// newLearner returns the default state for a first interaction.
func newLearner(id, name string, now time.Time) Learner {
	return Learner{
		ID:          id,
		Name:        name,
		Difficulty:  bank.Easy,
		ActiveTopic: bank.Mixed,
		CreatedAt:   now,
	}
}

// Store persists learners, their topic weights and the attempt log.
//
// Every method re-reads persisted state; implementations keep no cache that
// could go stale under concurrent writers.
type Store interface {
	// EnsureLearner creates the learner with default state and a weight of
	// InitialWeight for every topic. For an existing learner it only adds
	// weights for topics that have none yet. created reports whether a new
	// learner row was written.
	EnsureLearner(ctx context.Context, id, name string, topics []string) (created bool, err error)
	GetLearner(ctx context.Context, id string) (Learner, error)
	UpdateLearner(ctx context.Context, id string, u Update) error
	GetWeights(ctx context.Context, id string) (map[string]float64, error)
	// ListWeights returns weights with their update times, ordered by topic.
	ListWeights(ctx context.Context, id string) ([]Weight, error)
	// AdjustWeight adds delta to the topic weight and floors the result at
	// MinWeight, as one atomic read-modify-write. A missing weight row
	// starts at InitialWeight.
	AdjustWeight(ctx context.Context, id, topic string, delta float64) (float64, error)
	AppendAttempt(ctx context.Context, a Attempt) error
	// ListAttempts returns a learner's attempts, oldest first.
	ListAttempts(ctx context.Context, id string) ([]Attempt, error)
	// Atomically runs fn against a learner-scoped transaction. All writes made
	// through the Tx are committed together if fn returns nil and discarded
	// otherwise. fn may run more than once on backends with optimistic
	// concurrency, so it must not have side effects outside the Tx.
	Atomically(ctx context.Context, id string, fn func(ctx context.Context, tx Tx) error) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Tx is the view of one learner inside Store.Atomically.
type Tx interface {
	// Learner returns the learner state including updates staged so far.
	Learner() Learner
	UpdateLearner(ctx context.Context, u Update) error
	AdjustWeight(ctx context.Context, topic string, delta float64) (float64, error)
	AppendAttempt(ctx context.Context, a Attempt) error
}
