// Package quiz is the adaptive selection and progression engine. It picks the
// next question for a learner from weighted topics and moves the learner's
// streaks, topic weights and difficulty after every answer.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/quizbot/internal/bank"
	"github.com/p-n-ai/quizbot/internal/learner"
)

// EngineConfig holds dependencies for the quiz engine.
type EngineConfig struct {
	Bank     *bank.Bank
	Store    learner.Store // defaults to an in-memory store
	Selector *Selector     // defaults to a clock-seeded selector
	Events   EventLogger   // defaults to NopEventLogger
}

// Engine is safe for concurrent use. It holds no learner state of its own;
// every call reads the store afresh.
type Engine struct {
	bank     *bank.Bank
	store    learner.Store
	selector *Selector
	events   EventLogger
}

// Summary is a learner's current progress.
type Summary struct {
	LearnerID     string
	Name          string
	Difficulty    bank.Difficulty
	CorrectStreak int
	WrongStreak   int
	ActiveTopic   string
	Weights       map[string]float64
	WeightDetail  []learner.Weight // sorted by topic
}

// DifficultyChange records a level transition.
type DifficultyChange struct {
	From bank.Difficulty
	To   bank.Difficulty
}

// Outcome is the result of one submitted answer.
type Outcome struct {
	Topic            string
	QuestionID       string
	Correct          bool
	CorrectAnswer    string
	WeightDelta      float64
	Weight           float64 // topic weight after the update
	CorrectStreak    int
	WrongStreak      int
	DifficultyChange *DifficultyChange // nil when the level did not move
}

// NewEngine creates a new quiz engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Bank == nil {
		return nil, fmt.Errorf("question bank is required")
	}
	store := cfg.Store
	if store == nil {
		store = learner.NewMemoryStore()
	}
	selector := cfg.Selector
	if selector == nil {
		selector = NewSelector(nil)
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	return &Engine{
		bank:     cfg.Bank,
		store:    store,
		selector: selector,
		events:   events,
	}, nil
}

// EnsureLearner creates the learner on first contact with a weight of 1.0
// for every topic. Calling it again is a no-op apart from giving topics added
// to the bank since then their initial weight.
func (e *Engine) EnsureLearner(ctx context.Context, id, displayName string) error {
	if id == "" {
		return fmt.Errorf("%w: empty learner id", ErrNotFound)
	}
	created, err := e.store.EnsureLearner(ctx, id, displayName, e.bank.Topics())
	if err != nil {
		return storeErr("ensure learner", err)
	}
	if created {
		slog.Info("learner created", "learner_id", id)
		e.publish(Event{LearnerID: id, EventType: EventLearnerCreated, Data: map[string]any{"name": displayName}})
	}
	return nil
}

// Summary returns the learner's difficulty, streaks, active topic and weights.
func (e *Engine) Summary(ctx context.Context, id string) (Summary, error) {
	l, err := e.store.GetLearner(ctx, id)
	if err != nil {
		return Summary{}, storeErr("get learner", err)
	}
	ws, err := e.store.ListWeights(ctx, id)
	if err != nil {
		return Summary{}, storeErr("list weights", err)
	}

	weights := make(map[string]float64, len(ws))
	for _, w := range ws {
		weights[w.Topic] = w.Value
	}
	return Summary{
		LearnerID:     l.ID,
		Name:          l.Name,
		Difficulty:    l.Difficulty,
		CorrectStreak: l.CorrectStreak,
		WrongStreak:   l.WrongStreak,
		ActiveTopic:   l.ActiveTopic,
		Weights:       weights,
		WeightDetail:  ws,
	}, nil
}

// SetActiveTopic sets the topic Skip draws from. topic is a topic id or bank.Mixed.
func (e *Engine) SetActiveTopic(ctx context.Context, id, topic string) error {
	if err := e.checkTopic(topic); err != nil {
		return err
	}
	if err := e.store.UpdateLearner(ctx, id, learner.Update{ActiveTopic: &topic}); err != nil {
		return storeErr("set active topic", err)
	}
	return nil
}

// NextQuestion draws a question from topic (or every topic for bank.Mixed) at
// difficulty d, weighted by the learner's current topic weights. It returns
// ErrEmptyPool when nothing exists at that level; it never falls back to
// another difficulty.
func (e *Engine) NextQuestion(ctx context.Context, id, topic string, d bank.Difficulty) (Pick, error) {
	if !d.Valid() {
		return Pick{}, fmt.Errorf("%w: difficulty %d", ErrNotFound, int(d))
	}
	if err := e.checkTopic(topic); err != nil {
		return Pick{}, err
	}
	weights, err := e.store.GetWeights(ctx, id)
	if err != nil {
		return Pick{}, storeErr("get weights", err)
	}

	pick, ok, err := e.selector.Select(e.bank, topic, d, weights)
	if err != nil {
		return Pick{}, bankErr(err)
	}
	if !ok {
		return Pick{}, fmt.Errorf("%w: topic %s at %s", ErrEmptyPool, topic, d)
	}
	return pick, nil
}

// Skip re-draws using the learner's active topic and difficulty. It changes
// no state.
func (e *Engine) Skip(ctx context.Context, id string) (Pick, error) {
	l, err := e.store.GetLearner(ctx, id)
	if err != nil {
		return Pick{}, storeErr("get learner", err)
	}
	return e.NextQuestion(ctx, id, l.ActiveTopic, l.Difficulty)
}

// SubmitAnswer grades selected against the question and applies the result.
// The attempt record, streaks, topic weight and difficulty are committed
// together: on error none of them changed. topic must be the concrete topic
// the question was drawn from.
func (e *Engine) SubmitAnswer(ctx context.Context, id, topic, questionID, selected string) (Outcome, error) {
	q, _, err := e.bank.QuestionByID(topic, questionID)
	if err != nil {
		return Outcome{}, bankErr(err)
	}
	correct := q.IsCorrect(selected)

	var out Outcome
	err = e.store.Atomically(ctx, id, func(ctx context.Context, tx learner.Tx) error {
		l := tx.Learner()
		s := advance(l, correct)

		if err := tx.AppendAttempt(ctx, learner.Attempt{
			Topic:      topic,
			QuestionID: q.ID,
			Correct:    correct,
		}); err != nil {
			return fmt.Errorf("append attempt: %w", err)
		}
		if err := tx.UpdateLearner(ctx, learner.Update{
			CorrectStreak: &s.correctStreak,
			WrongStreak:   &s.wrongStreak,
			Difficulty:    &s.difficulty,
		}); err != nil {
			return fmt.Errorf("update learner: %w", err)
		}
		w, err := tx.AdjustWeight(ctx, topic, s.weightDelta)
		if err != nil {
			return fmt.Errorf("adjust weight: %w", err)
		}

		// fn may run more than once; build the outcome from scratch each time.
		out = Outcome{
			Topic:         topic,
			QuestionID:    q.ID,
			Correct:       correct,
			CorrectAnswer: q.Answer,
			WeightDelta:   s.weightDelta,
			Weight:        w,
			CorrectStreak: s.correctStreak,
			WrongStreak:   s.wrongStreak,
		}
		if s.changed(l.Difficulty) {
			out.DifficultyChange = &DifficultyChange{From: l.Difficulty, To: s.difficulty}
		}
		return nil
	})
	if err != nil {
		return Outcome{}, storeErr("submit answer", err)
	}

	slog.Debug("answer recorded",
		"learner_id", id,
		"topic", topic,
		"question_id", q.ID,
		"correct", correct,
		"weight", out.Weight,
	)
	e.publish(Event{
		LearnerID: id,
		EventType: EventAnswerSubmitted,
		Data:      map[string]any{"topic": topic, "question_id": q.ID, "correct": correct},
	})
	if c := out.DifficultyChange; c != nil {
		slog.Info("difficulty changed", "learner_id", id, "from", c.From.String(), "to", c.To.String())
		e.publish(Event{
			LearnerID: id,
			EventType: EventDifficultyChanged,
			Data:      map[string]any{"from": c.From.String(), "to": c.To.String()},
		})
	}
	return out, nil
}

// Theory returns the theory text of a topic.
func (e *Engine) Theory(topic string) (string, error) {
	text, err := e.bank.Theory(topic)
	if err != nil {
		return "", bankErr(err)
	}
	return text, nil
}

// Topics lists topic ids in catalog order.
func (e *Engine) Topics() []string {
	return e.bank.Topics()
}

// Attempts returns the learner's attempt log, oldest first.
func (e *Engine) Attempts(ctx context.Context, id string) ([]learner.Attempt, error) {
	as, err := e.store.ListAttempts(ctx, id)
	if err != nil {
		return nil, storeErr("list attempts", err)
	}
	return as, nil
}

func (e *Engine) checkTopic(topic string) error {
	if topic == bank.Mixed || e.bank.HasTopic(topic) {
		return nil
	}
	return fmt.Errorf("%w: topic %s", ErrNotFound, topic)
}

func (e *Engine) publish(ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if err := e.events.LogEvent(ev); err != nil {
		slog.Warn("event not logged", "type", ev.EventType, "learner_id", ev.LearnerID, "error", err)
	}
}

// IsUserError reports whether err is one a caller should answer with a
// re-selection prompt rather than a failure message.
func IsUserError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmptyPool)
}
