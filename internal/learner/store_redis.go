package learner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/quizbot/internal/bank"
)

const (
	defaultKeyPrefix = "quiz"
	maxTxRetries     = 10
)

// adjustWeightScript performs the clamped increment server-side.
// KEYS: learner hash, weights hash, weight timestamps hash.
// ARGV: topic, delta, initial, floor, now (unix ms).
var adjustWeightScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local w = tonumber(redis.call('HGET', KEYS[2], ARGV[1]) or ARGV[3])
w = w + tonumber(ARGV[2])
local floor = tonumber(ARGV[4])
if w < floor then
  w = floor
end
local s = string.format('%.17g', w)
redis.call('HSET', KEYS[2], ARGV[1], s)
redis.call('HSET', KEYS[3], ARGV[1], ARGV[5])
return s
`)

// RedisStore keeps each learner in a few hashes and a list:
//
//	<prefix>:learner:<id>     fields of Learner
//	<prefix>:weights:<id>     topic -> weight
//	<prefix>:weights_at:<id>  topic -> last update (unix ms)
//	<prefix>:attempts:<id>    JSON attempts, oldest first
//
// Multi-key updates use WATCH/MULTI and are retried on conflict.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed learner store. An empty prefix uses "quiz".
func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}, nil
}

func (s *RedisStore) learnerKey(id string) string   { return s.prefix + ":learner:" + id }
func (s *RedisStore) weightsKey(id string) string   { return s.prefix + ":weights:" + id }
func (s *RedisStore) weightsAtKey(id string) string { return s.prefix + ":weights_at:" + id }
func (s *RedisStore) attemptsKey(id string) string  { return s.prefix + ":attempts:" + id }

func (s *RedisStore) EnsureLearner(ctx context.Context, id, name string, topics []string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("learner id is required")
	}

	now := s.now()
	var idSet *redis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		idSet = pipe.HSetNX(ctx, s.learnerKey(id), "id", id)
		for field, v := range learnerFields(newLearner(id, name, now)) {
			if field != "id" {
				pipe.HSetNX(ctx, s.learnerKey(id), field, v)
			}
		}
		for _, t := range topics {
			pipe.HSetNX(ctx, s.weightsKey(id), t, formatFloat(InitialWeight))
			pipe.HSetNX(ctx, s.weightsAtKey(id), t, now.UnixMilli())
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("initialize learner: %w", err)
	}
	return idSet.Val(), nil
}

func (s *RedisStore) GetLearner(ctx context.Context, id string) (Learner, error) {
	return s.readLearner(ctx, s.client, id)
}

func (s *RedisStore) UpdateLearner(ctx context.Context, id string, u Update) error {
	return s.Atomically(ctx, id, func(ctx context.Context, tx Tx) error {
		return tx.UpdateLearner(ctx, u)
	})
}

func (s *RedisStore) GetWeights(ctx context.Context, id string) (map[string]float64, error) {
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

func (s *RedisStore) ListWeights(ctx context.Context, id string) ([]Weight, error) {
	if _, err := s.readLearner(ctx, s.client, id); err != nil {
		return nil, err
	}
	m, err := s.readWeights(ctx, s.client, id)
	if err != nil {
		return nil, err
	}
	return sortedWeights(m), nil
}

func (s *RedisStore) AdjustWeight(ctx context.Context, id, topic string, delta float64) (float64, error) {
	res, err := adjustWeightScript.Run(ctx, s.client,
		[]string{s.learnerKey(id), s.weightsKey(id), s.weightsAtKey(id)},
		topic, formatFloat(delta), formatFloat(InitialWeight), formatFloat(MinWeight), s.now().UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("adjust weight: %w", err)
	}
	w, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, fmt.Errorf("parse weight %q: %w", res, err)
	}
	return w, nil
}

func (s *RedisStore) AppendAttempt(ctx context.Context, a Attempt) error {
	return s.Atomically(ctx, a.LearnerID, func(ctx context.Context, tx Tx) error {
		return tx.AppendAttempt(ctx, a)
	})
}

func (s *RedisStore) ListAttempts(ctx context.Context, id string) ([]Attempt, error) {
	if _, err := s.readLearner(ctx, s.client, id); err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.attemptsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	out := make([]Attempt, 0, len(raw))
	for _, r := range raw {
		var a Attempt
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Atomically watches the learner's state keys, runs fn against a staged copy
// and commits the staged writes in one MULTI/EXEC. On a concurrent write the
// transaction fails as a whole and fn is run again on fresh state.
func (s *RedisStore) Atomically(ctx context.Context, id string, fn func(ctx context.Context, tx Tx) error) error {
	keys := []string{s.learnerKey(id), s.weightsKey(id)}

	for range maxTxRetries {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			l, err := s.readLearner(ctx, rtx, id)
			if err != nil {
				return err
			}
			weights, err := s.readWeights(ctx, rtx, id)
			if err != nil {
				return err
			}

			stx := &redisTx{learner: l, weights: weights, now: s.now}
			if err := fn(ctx, stx); err != nil {
				return err
			}

			_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if stx.learnerDirty {
					pipe.HSet(ctx, s.learnerKey(id), learnerFields(stx.learner))
				}
				for topic := range stx.dirtyWeights {
					w := stx.weights[topic]
					pipe.HSet(ctx, s.weightsKey(id), topic, formatFloat(w.Value))
					pipe.HSet(ctx, s.weightsAtKey(id), topic, w.UpdatedAt.UnixMilli())
				}
				for _, a := range stx.attempts {
					b, err := json.Marshal(a)
					if err != nil {
						return fmt.Errorf("encode attempt: %w", err)
					}
					pipe.RPush(ctx, s.attemptsKey(id), b)
				}
				return nil
			})
			return err
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("learner %s: too much contention after %d attempts", id, maxTxRetries)
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) readLearner(ctx context.Context, c hashReader, id string) (Learner, error) {
	m, err := c.HGetAll(ctx, s.learnerKey(id)).Result()
	if err != nil {
		return Learner{}, fmt.Errorf("get learner: %w", err)
	}
	if len(m) == 0 {
		return Learner{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return parseLearnerFields(m)
}

func (s *RedisStore) readWeights(ctx context.Context, c hashReader, id string) (map[string]Weight, error) {
	values, err := c.HGetAll(ctx, s.weightsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get weights: %w", err)
	}
	stamps, err := c.HGetAll(ctx, s.weightsAtKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get weight timestamps: %w", err)
	}

	out := make(map[string]Weight, len(values))
	for topic, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("weight %s: %w", topic, err)
		}
		w := Weight{Topic: topic, Value: f}
		if ms, err := strconv.ParseInt(stamps[topic], 10, 64); err == nil {
			w.UpdatedAt = time.UnixMilli(ms)
		}
		out[topic] = w
	}
	return out, nil
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func learnerFields(l Learner) map[string]any {
	return map[string]any{
		"id":             l.ID,
		"name":           l.Name,
		"difficulty":     l.Difficulty.String(),
		"correct_streak": l.CorrectStreak,
		"wrong_streak":   l.WrongStreak,
		"active_topic":   l.ActiveTopic,
		"created_at":     l.CreatedAt.UnixMilli(),
	}
}

func parseLearnerFields(m map[string]string) (Learner, error) {
	l := Learner{
		ID:          m["id"],
		Name:        m["name"],
		ActiveTopic: m["active_topic"],
	}
	var err error
	if l.Difficulty, err = bank.ParseDifficulty(m["difficulty"]); err != nil {
		return Learner{}, fmt.Errorf("learner %s: %w", l.ID, err)
	}
	if l.CorrectStreak, err = strconv.Atoi(m["correct_streak"]); err != nil {
		return Learner{}, fmt.Errorf("learner %s correct_streak: %w", l.ID, err)
	}
	if l.WrongStreak, err = strconv.Atoi(m["wrong_streak"]); err != nil {
		return Learner{}, fmt.Errorf("learner %s wrong_streak: %w", l.ID, err)
	}
	ms, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return Learner{}, fmt.Errorf("learner %s created_at: %w", l.ID, err)
	}
	l.CreatedAt = time.UnixMilli(ms)
	return l, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// redisTx stages writes until the surrounding MULTI/EXEC.
type redisTx struct {
	learner      Learner
	learnerDirty bool
	weights      map[string]Weight
	dirtyWeights map[string]bool
	attempts     []Attempt
	now          func() time.Time
}

func (t *redisTx) Learner() Learner {
	return t.learner
}

func (t *redisTx) UpdateLearner(_ context.Context, u Update) error {
	u.apply(&t.learner)
	t.learnerDirty = true
	return nil
}

func (t *redisTx) AdjustWeight(_ context.Context, topic string, delta float64) (float64, error) {
	w, ok := t.weights[topic]
	if !ok {
		w = Weight{Topic: topic, Value: InitialWeight}
	}
	w.Value = ClampWeight(w.Value + delta)
	w.UpdatedAt = t.now()
	t.weights[topic] = w

	if t.dirtyWeights == nil {
		t.dirtyWeights = make(map[string]bool)
	}
	t.dirtyWeights[topic] = true
	return w.Value, nil
}

func (t *redisTx) AppendAttempt(_ context.Context, a Attempt) error {
	if err := prepareAttempt(&a, t.learner.ID, t.now()); err != nil {
		return err
	}
	t.attempts = append(t.attempts, a)
	return nil
}
