package learner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/quizbot/internal/bank"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. The schema lives in
// internal/platform/database/migrations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed learner store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) EnsureLearner(ctx context.Context, id, name string, topics []string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("learner id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var created bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx,
			`INSERT INTO learners (id, name, difficulty, correct_streak, wrong_streak, active_topic)
			 VALUES ($1, $2, $3, 0, 0, $4)
			 ON CONFLICT (id) DO NOTHING`,
			id, name, bank.Easy.String(), bank.Mixed,
		)
		if err != nil {
			return fmt.Errorf("insert learner: %w", err)
		}
		created = cmd.RowsAffected() > 0

		if len(topics) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO topic_weights (learner_id, topic, weight)
			 SELECT $1, t, $3 FROM unnest($2::text[]) AS t
			 ON CONFLICT (learner_id, topic) DO NOTHING`,
			id, topics, InitialWeight,
		); err != nil {
			return fmt.Errorf("insert weights: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *PostgresStore) GetLearner(ctx context.Context, id string) (Learner, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return pgLearner(ctx, s.pool, id, false)
}

func (s *PostgresStore) UpdateLearner(ctx context.Context, id string, u Update) error {
	return s.Atomically(ctx, id, func(ctx context.Context, tx Tx) error {
		return tx.UpdateLearner(ctx, u)
	})
}

func (s *PostgresStore) GetWeights(ctx context.Context, id string) (map[string]float64, error) {
	ws, err := s.ListWeights(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(ws))
	for _, w := range ws {
		out[w.Topic] = w.Value
	}
	return out, nil
}

func (s *PostgresStore) ListWeights(ctx context.Context, id string) ([]Weight, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := pgLearner(ctx, s.pool, id, false); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT topic, weight, updated_at
		 FROM topic_weights
		 WHERE learner_id = $1
		 ORDER BY topic ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query weights: %w", err)
	}
	defer rows.Close()

	var out []Weight
	for rows.Next() {
		var w Weight
		if err := rows.Scan(&w.Topic, &w.Value, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan weight: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weights: %w", err)
	}
	return out, nil
}

// AdjustWeight is a single clamped upsert; the row lock taken by the UPDATE
// serializes concurrent increments for the same (learner, topic).
func (s *PostgresStore) AdjustWeight(ctx context.Context, id, topic string, delta float64) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := pgLearner(ctx, s.pool, id, false); err != nil {
		return 0, err
	}
	return pgAdjustWeight(ctx, s.pool, id, topic, delta)
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, a Attempt) error {
	return s.Atomically(ctx, a.LearnerID, func(ctx context.Context, tx Tx) error {
		return tx.AppendAttempt(ctx, a)
	})
}

func (s *PostgresStore) ListAttempts(ctx context.Context, id string) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := pgLearner(ctx, s.pool, id, false); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, learner_id, topic, question_id, correct, created_at
		 FROM attempts
		 WHERE learner_id = $1
		 ORDER BY created_at ASC, id ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.LearnerID, &a.Topic, &a.QuestionID, &a.Correct, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// Atomically locks the learner row with SELECT ... FOR UPDATE so concurrent
// submissions for the same learner are applied one after another.
func (s *PostgresStore) Atomically(ctx context.Context, id string, fn func(ctx context.Context, tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		l, err := pgLearner(ctx, tx, id, true)
		if err != nil {
			return err
		}
		return fn(ctx, &pgTx{tx: tx, learner: l})
	})
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgLearner(ctx context.Context, q pgQuerier, id string, forUpdate bool) (Learner, error) {
	query := `SELECT id, name, difficulty, correct_streak, wrong_streak, active_topic, created_at
		 FROM learners
		 WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var l Learner
	var difficulty string
	err := q.QueryRow(ctx, query, id).Scan(
		&l.ID,
		&l.Name,
		&difficulty,
		&l.CorrectStreak,
		&l.WrongStreak,
		&l.ActiveTopic,
		&l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Learner{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Learner{}, fmt.Errorf("get learner: %w", err)
	}
	if l.Difficulty, err = bank.ParseDifficulty(difficulty); err != nil {
		return Learner{}, fmt.Errorf("learner %s: %w", id, err)
	}
	return l, nil
}

func pgAdjustWeight(ctx context.Context, q pgQuerier, id, topic string, delta float64) (float64, error) {
	var w float64
	err := q.QueryRow(ctx,
		`INSERT INTO topic_weights (learner_id, topic, weight, updated_at)
		 VALUES ($1, $2, GREATEST($3::float8, $4::float8 + $5::float8), NOW())
		 ON CONFLICT (learner_id, topic) DO UPDATE
		 SET weight = GREATEST($3::float8, topic_weights.weight + $5::float8), updated_at = NOW()
		 RETURNING weight`,
		id, topic, MinWeight, InitialWeight, delta,
	).Scan(&w)
	if err != nil {
		return 0, fmt.Errorf("adjust weight: %w", err)
	}
	return w, nil
}

type pgTx struct {
	tx      pgx.Tx
	learner Learner
}

func (t *pgTx) Learner() Learner {
	return t.learner
}

func (t *pgTx) UpdateLearner(ctx context.Context, u Update) error {
	next := t.learner
	u.apply(&next)

	cmd, err := t.tx.Exec(ctx,
		`UPDATE learners
		 SET difficulty = $2, correct_streak = $3, wrong_streak = $4, active_topic = $5
		 WHERE id = $1`,
		next.ID,
		next.Difficulty.String(),
		next.CorrectStreak,
		next.WrongStreak,
		next.ActiveTopic,
	)
	if err != nil {
		return fmt.Errorf("update learner: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, next.ID)
	}
	t.learner = next
	return nil
}

func (t *pgTx) AdjustWeight(ctx context.Context, topic string, delta float64) (float64, error) {
	return pgAdjustWeight(ctx, t.tx, t.learner.ID, topic, delta)
}

func (t *pgTx) AppendAttempt(ctx context.Context, a Attempt) error {
	if err := prepareAttempt(&a, t.learner.ID, time.Now()); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO attempts (id, learner_id, topic, question_id, correct, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6)`,
		a.ID, a.LearnerID, a.Topic, a.QuestionID, a.Correct, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}
