package learner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/p-n-ai/quizbot/internal/bank"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS learners (
    id             TEXT PRIMARY KEY,
    name           TEXT    NOT NULL DEFAULT '',
    difficulty     TEXT    NOT NULL DEFAULT 'easy',
    correct_streak INTEGER NOT NULL DEFAULT 0 CHECK (correct_streak >= 0),
    wrong_streak   INTEGER NOT NULL DEFAULT 0 CHECK (wrong_streak >= 0),
    active_topic   TEXT    NOT NULL DEFAULT 'Mixed',
    created_at     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS topic_weights (
    learner_id TEXT    NOT NULL REFERENCES learners(id) ON DELETE CASCADE,
    topic      TEXT    NOT NULL,
    weight     REAL    NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (learner_id, topic)
);

CREATE TABLE IF NOT EXISTS attempts (
    id          TEXT PRIMARY KEY,
    learner_id  TEXT    NOT NULL REFERENCES learners(id) ON DELETE CASCADE,
    topic       TEXT    NOT NULL,
    question_id TEXT    NOT NULL,
    correct     INTEGER NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS attempts_learner_created_idx ON attempts (learner_id, created_at);
`

// SQLiteStore is an embedded, file-backed Store. Writes are serialized
// through a single connection, so every Atomically call is isolated.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and migrates) the SQLite database at dsn. Use ":memory:"
// for a throwaway database.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// OpenSQLiteReadOnly opens an existing SQLite database for inspection. It
// fails when the file does not exist and never creates or migrates anything.
// Every write through the returned store fails.
func OpenSQLiteReadOnly(ctx context.Context, path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA query_only = ON"} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragmas: %s: %w", p, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// applyPragmas configures SQLite for a single-process server.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func (s *SQLiteStore) EnsureLearner(ctx context.Context, id, name string, topics []string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("learner id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO learners (id, name, difficulty, correct_streak, wrong_streak, active_topic, created_at)
		 VALUES (?, ?, ?, 0, 0, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		id, name, bank.Easy.String(), bank.Mixed, now.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert learner: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert learner: %w", err)
	}

	for _, t := range topics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO topic_weights (learner_id, topic, weight, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (learner_id, topic) DO NOTHING`,
			id, t, InitialWeight, now.UnixMilli(),
		); err != nil {
			return false, fmt.Errorf("insert weight: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetLearner(ctx context.Context, id string) (Learner, error) {
	return sqliteLearner(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateLearner(ctx context.Context, id string, u Update) error {
	return s.Atomically(ctx, id, func(ctx context.Context, tx Tx) error {
		return tx.UpdateLearner(ctx, u)
	})
}

func (s *SQLiteStore) GetWeights(ctx context.Context, id string) (map[string]float64, error) {
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

func (s *SQLiteStore) ListWeights(ctx context.Context, id string) ([]Weight, error) {
	if _, err := sqliteLearner(ctx, s.db, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT topic, weight, updated_at FROM topic_weights WHERE learner_id = ? ORDER BY topic`, id)
	if err != nil {
		return nil, fmt.Errorf("query weights: %w", err)
	}
	defer rows.Close()

	var out []Weight
	for rows.Next() {
		var w Weight
		var updatedAt int64
		if err := rows.Scan(&w.Topic, &w.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan weight: %w", err)
		}
		w.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weights: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AdjustWeight(ctx context.Context, id, topic string, delta float64) (float64, error) {
	var w float64
	err := s.Atomically(ctx, id, func(ctx context.Context, tx Tx) error {
		var err error
		w, err = tx.AdjustWeight(ctx, topic, delta)
		return err
	})
	return w, err
}

func (s *SQLiteStore) AppendAttempt(ctx context.Context, a Attempt) error {
	return s.Atomically(ctx, a.LearnerID, func(ctx context.Context, tx Tx) error {
		return tx.AppendAttempt(ctx, a)
	})
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, id string) ([]Attempt, error) {
	if _, err := sqliteLearner(ctx, s.db, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, learner_id, topic, question_id, correct, created_at
		 FROM attempts
		 WHERE learner_id = ?
		 ORDER BY created_at ASC, rowid ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.LearnerID, &a.Topic, &a.QuestionID, &a.Correct, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Atomically(ctx context.Context, id string, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	l, err := sqliteLearner(ctx, tx, id)
	if err != nil {
		return err
	}

	if err := fn(ctx, &sqliteTx{tx: tx, learner: l, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteLearner(ctx context.Context, q sqliteQuerier, id string) (Learner, error) {
	var l Learner
	var difficulty string
	var createdAt int64
	err := q.QueryRowContext(ctx,
		`SELECT id, name, difficulty, correct_streak, wrong_streak, active_topic, created_at
		 FROM learners WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &difficulty, &l.CorrectStreak, &l.WrongStreak, &l.ActiveTopic, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Learner{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Learner{}, fmt.Errorf("get learner: %w", err)
	}

	if l.Difficulty, err = bank.ParseDifficulty(difficulty); err != nil {
		return Learner{}, fmt.Errorf("learner %s: %w", id, err)
	}
	l.CreatedAt = time.UnixMilli(createdAt)
	return l, nil
}

type sqliteTx struct {
	tx      *sql.Tx
	learner Learner
	now     func() time.Time
}

func (t *sqliteTx) Learner() Learner {
	return t.learner
}

func (t *sqliteTx) UpdateLearner(ctx context.Context, u Update) error {
	next := t.learner
	u.apply(&next)

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE learners
		 SET difficulty = ?, correct_streak = ?, wrong_streak = ?, active_topic = ?
		 WHERE id = ?`,
		next.Difficulty.String(), next.CorrectStreak, next.WrongStreak, next.ActiveTopic, next.ID,
	); err != nil {
		return fmt.Errorf("update learner: %w", err)
	}
	t.learner = next
	return nil
}

func (t *sqliteTx) AdjustWeight(ctx context.Context, topic string, delta float64) (float64, error) {
	var w float64
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO topic_weights (learner_id, topic, weight, updated_at)
		 VALUES (?1, ?2, MAX(?3, ?4 + ?5), ?6)
		 ON CONFLICT (learner_id, topic) DO UPDATE
		 SET weight = MAX(?3, topic_weights.weight + ?5), updated_at = excluded.updated_at
		 RETURNING weight`,
		t.learner.ID, topic, MinWeight, InitialWeight, delta, t.now().UnixMilli(),
	).Scan(&w)
	if err != nil {
		return 0, fmt.Errorf("adjust weight: %w", err)
	}
	return w, nil
}

func (t *sqliteTx) AppendAttempt(ctx context.Context, a Attempt) error {
	if err := prepareAttempt(&a, t.learner.ID, t.now()); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO attempts (id, learner_id, topic, question_id, correct, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.LearnerID, a.Topic, a.QuestionID, a.Correct, a.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}
