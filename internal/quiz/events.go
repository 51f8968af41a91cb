package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const eventTimeout = 5 * time.Second

// Event types emitted by the engine after a change is committed.
const (
	EventLearnerCreated    = "learner_created"
	EventAnswerSubmitted   = "answer_submitted"
	EventDifficultyChanged = "difficulty_changed"
)

// Event is an analytics record of something the engine did.
type Event struct {
	LearnerID string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger receives engine events. Events are published after the state
// change commits; a logger failure never rolls back learner state.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// Count returns how many events of type eventType were logged.
func (l *MemoryEventLogger) Count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// SlogEventLogger writes events to a structured logger. It is the default
// sink for stores without an events table.
type SlogEventLogger struct {
	logger *slog.Logger
}

// NewSlogEventLogger returns a logger that writes to l, or to slog.Default()
// when l is nil.
func NewSlogEventLogger(l *slog.Logger) *SlogEventLogger {
	return &SlogEventLogger{logger: l}
}

func (l *SlogEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("quiz event",
		"type", event.EventType,
		"learner_id", event.LearnerID,
		"data", event.Data,
	)
	return nil
}

// PostgresEventLogger inserts events into the events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.LearnerID == "" {
		return fmt.Errorf("learner_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO events (learner_id, event_type, data, created_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		event.LearnerID,
		event.EventType,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged", "type", event.EventType, "learner_id", event.LearnerID)
	return nil
}
