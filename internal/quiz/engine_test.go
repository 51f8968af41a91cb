package quiz_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-n-ai/quizbot/internal/bank"
	"github.com/p-n-ai/quizbot/internal/learner"
	"github.com/p-n-ai/quizbot/internal/quiz"
)

func q(id, answer string, options ...string) bank.Question {
	return bank.Question{ID: id, Prompt: "prompt " + id, Options: options, Answer: answer}
}

// testBank has topic A with one easy, one medium and one hard question, and
// topic B with a single easy question.
func testBank(t *testing.T) *bank.Bank {
	t.Helper()
	b, err := bank.New(
		bank.Topic{ID: "A", Theory: "Arrays are contiguous.", Questions: map[bank.Difficulty][]bank.Question{
			bank.Easy:   {q("Q1", "yes", "yes", "no")},
			bank.Medium: {q("QM", "O(1)", "O(1)", "O(n)")},
			bank.Hard:   {q("QH", "amortized", "amortized", "never")},
		}},
		bank.Topic{ID: "B", Theory: "Graphs have edges.", Questions: map[bank.Difficulty][]bank.Question{
			bank.Easy: {q("Q2", "edge", "edge", "leaf")},
		}},
	)
	require.NoError(t, err)
	return b
}

type fixture struct {
	engine *quiz.Engine
	store  *learner.MemoryStore
	events *quiz.MemoryEventLogger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := learner.NewMemoryStore()
	events := quiz.NewMemoryEventLogger()
	e, err := quiz.NewEngine(quiz.EngineConfig{
		Bank:     testBank(t),
		Store:    store,
		Selector: quiz.NewSelector(rand.NewPCG(42, 7)),
		Events:   events,
	})
	require.NoError(t, err)
	return fixture{engine: e, store: store, events: events}
}

func TestNewEngine_RequiresBank(t *testing.T) {
	_, err := quiz.NewEngine(quiz.EngineConfig{})
	require.Error(t, err)
}

func TestEngine_EnsureLearner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.EnsureLearner(ctx, "U1", "Ali"))
	require.NoError(t, f.engine.EnsureLearner(ctx, "U1", "Someone else"))

	s, err := f.engine.Summary(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Ali", s.Name)
	assert.Equal(t, bank.Easy, s.Difficulty)
	assert.Equal(t, 0, s.CorrectStreak)
	assert.Equal(t, 0, s.WrongStreak)
	assert.Equal(t, bank.Mixed, s.ActiveTopic)
	assert.Equal(t, map[string]float64{"A": 1.0, "B": 1.0}, s.Weights)
	assert.Len(t, s.WeightDetail, 2)
	assert.Equal(t, 1, f.events.Count(quiz.EventLearnerCreated))
}

func TestEngine_UnknownLearner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Summary(ctx, "ghost")
	assert.ErrorIs(t, err, quiz.ErrNotFound)
	_, err = f.engine.NextQuestion(ctx, "ghost", bank.Mixed, bank.Easy)
	assert.ErrorIs(t, err, quiz.ErrNotFound)
	_, err = f.engine.SubmitAnswer(ctx, "ghost", "A", "Q1", "yes")
	assert.ErrorIs(t, err, quiz.ErrNotFound)
	_, err = f.engine.Skip(ctx, "ghost")
	assert.ErrorIs(t, err, quiz.ErrNotFound)
	assert.ErrorIs(t, f.engine.SetActiveTopic(ctx, "ghost", "A"), quiz.ErrNotFound)
}

func TestEngine_ScenarioU1(t *testing.T) {
	ctx := context.Background()
	b, err := bank.New(
		bank.Topic{ID: "A", Questions: map[bank.Difficulty][]bank.Question{bank.Easy: {q("Q1", "yes", "yes", "no")}}},
		bank.Topic{ID: "B", Questions: map[bank.Difficulty][]bank.Question{bank.Easy: {q("Q2", "edge", "edge", "leaf")}}},
	)
	require.NoError(t, err)
	e, err := quiz.NewEngine(quiz.EngineConfig{Bank: b})
	require.NoError(t, err)

	require.NoError(t, e.EnsureLearner(ctx, "U1", "U1"))

	pick, err := e.NextQuestion(ctx, "U1", bank.Mixed, bank.Easy)
	require.NoError(t, err)
	assert.Contains(t, []string{"Q1", "Q2"}, pick.Question.ID)
	assert.NotEqual(t, bank.Mixed, pick.Topic)

	out, err := e.SubmitAnswer(ctx, "U1", "A", "Q1", "yes")
	require.NoError(t, err)
	assert.True(t, out.Correct)
	assert.Equal(t, "yes", out.CorrectAnswer)
	assert.InDelta(t, -0.3, out.WeightDelta, 1e-9)
	assert.InDelta(t, 0.7, out.Weight, 1e-9)
	assert.Nil(t, out.DifficultyChange)

	s, err := e.Summary(ctx, "U1")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, s.Weights["A"], 1e-9)
	assert.Equal(t, 1, s.CorrectStreak)

	_, err = e.SubmitAnswer(ctx, "U1", "A", "Q1", "yes")
	require.NoError(t, err)
	out, err = e.SubmitAnswer(ctx, "U1", "A", "Q1", "yes")
	require.NoError(t, err)
	require.NotNil(t, out.DifficultyChange)
	assert.Equal(t, bank.Easy, out.DifficultyChange.From)
	assert.Equal(t, bank.Medium, out.DifficultyChange.To)

	s, err = e.Summary(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, bank.Medium, s.Difficulty, "three corrects from easy reach medium, not hard")
}

func TestEngine_TwoWrongFromHardReachMedium(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureLearner(ctx, "u", "u"))

	hard := bank.Hard
	require.NoError(t, f.store.UpdateLearner(ctx, "u", learner.Update{Difficulty: &hard}))

	out, err := f.engine.SubmitAnswer(ctx, "u", "A", "QH", "never")
	require.NoError(t, err)
	assert.False(t, out.Correct)
	assert.Equal(t, "amortized", out.CorrectAnswer)
	assert.Nil(t, out.DifficultyChange)

	out, err = f.engine.SubmitAnswer(ctx, "u", "A", "QH", "never")
	require.NoError(t, err)
	require.NotNil(t, out.DifficultyChange)
	assert.Equal(t, quiz.DifficultyChange{From: bank.Hard, To: bank.Medium}, *out.DifficultyChange)
	assert.InDelta(t, 2.0, out.Weight, 1e-9)
	assert.Equal(t, 1, f.events.Count(quiz.EventDifficultyChanged))
}

func TestEngine_StreaksStayExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureLearner(ctx, "u", "u"))

	rng := rand.New(rand.NewPCG(1, 1))
	for i := range 200 {
		answer := "leaf"
		if rng.IntN(2) == 0 {
			answer = "edge"
		}
		_, err := f.engine.SubmitAnswer(ctx, "u", "B", "Q2", answer)
		require.NoError(t, err)

		s, err := f.engine.Summary(ctx, "u")
		require.NoError(t, err)
		if s.CorrectStreak > 0 && s.WrongStreak > 0 {
			t.Fatalf("after answer %d both streaks nonzero: %d/%d", i, s.CorrectStreak, s.WrongStreak)
		}
		for topic, w := range s.Weights {
			if w < learner.MinWeight {
				t.Fatalf("weight[%s] = %v below floor", topic, w)
			}
		}
		assert.True(t, s.Difficulty.Valid())
	}
}

func TestEngine_WeightFloorAndOneAttemptPerSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureLearner(ctx, "u", "u"))

	const n = 25
	for range n {
		out, err := f.engine.SubmitAnswer(ctx, "u", "B", "Q2", "edge")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, out.Weight, learner.MinWeight)
	}

	s, err := f.engine.Summary(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, learner.MinWeight, s.Weights["B"])

	attempts, err := f.engine.Attempts(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, attempts, n)
	for _, a := range attempts {
		assert.Equal(t, "B", a.Topic)
		assert.Equal(t, "Q2", a.QuestionID)
		assert.True(t, a.Correct)
	}
	assert.Equal(t, n, f.events.Count(quiz.EventAnswerSubmitted))
}

func TestEngine_NextQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureLearner(ctx, "u", "u"))

	t.Run("empty pool", func(t *testing.T) {
		_, err := f.engine.NextQuestion(ctx, "u", "B", bank.Hard)
		assert.ErrorIs(t, err, quiz.ErrEmptyPool)
	})

	t.Run("never crosses difficulty", func(t *testing.T) {
		for range 50 {
			p, err := f.engine.NextQuestion(ctx, "u", bank.Mixed, bank.Medium)
			require.NoError(t, err)
			assert.Equal(t, "QM", p.Question.ID)
			assert.Equal(t, "A", p.Topic)
		}
	})

	t.Run("unknown topic", func(t *testing.T) {
		_, err := f.engine.NextQuestion(ctx, "u", "Nope", bank.Easy)
		assert.ErrorIs(t, err, quiz.ErrNotFound)
	})

	t.Run("invalid difficulty", func(t *testing.T) {
		_, err := f.engine.NextQuestion(ctx, "u", "A", bank.Difficulty(9))
		assert.Error(t, err)
	})
}

func TestEngine_SubmitUnknownQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureLearner(ctx, "u", "u"))

	_, err := f.engine.SubmitAnswer(ctx, "u", "A", "Q2", "edge")
	assert.ErrorIs(t, err, quiz.ErrNotFound, "question from another topic")
	_, err = f.engine.SubmitAnswer(ctx, "u", "Nope", "Q1", "yes")
	assert.ErrorIs(t, err, quiz.ErrNotFound)
	_, err = f.engine.SubmitAnswer(ctx, "u", bank.Mixed, "Q1", "yes")
	assert.ErrorIs(t, err, quiz.ErrNotFound)

	attempts, err := f.engine.Attempts(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestEngine_SetActiveTopicAndSkip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureLearner(ctx, "u", "u"))

	assert.ErrorIs(t, f.engine.SetActiveTopic(ctx, "u", "Nope"), quiz.ErrNotFound)
	require.NoError(t, f.engine.SetActiveTopic(ctx, "u", "B"))

	before, err := f.engine.Summary(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "B", before.ActiveTopic)

	for range 10 {
		p, err := f.engine.Skip(ctx, "u")
		require.NoError(t, err)
		assert.Equal(t, "Q2", p.Question.ID)
	}

	after, err := f.engine.Summary(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, before, after, "skip must not change state")

	attempts, err := f.engine.Attempts(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestEngine_TheoryAndTopics(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{"A", "B"}, f.engine.Topics())
	text, err := f.engine.Theory("B")
	require.NoError(t, err)
	assert.Equal(t, "Graphs have edges.", text)

	_, err = f.engine.Theory("Nope")
	assert.ErrorIs(t, err, quiz.ErrNotFound)
}

func TestEngine_ConcurrentSubmitsLoseNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.EnsureLearner(ctx, "u", "u"))

	const n = 40
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.SubmitAnswer(ctx, "u", "A", "Q1", "no")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	s, err := f.engine.Summary(ctx, "u")
	require.NoError(t, err)
	assert.InDelta(t, 1.0+n*quiz.WrongWeightDelta, s.Weights["A"], 1e-9)
	assert.Equal(t, n, s.WrongStreak)

	attempts, err := f.engine.Attempts(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, attempts, n)
}

// failingStore fails every atomic update after staging part of it.
type failingStore struct {
	*learner.MemoryStore
}

var errDiskFull = errors.New("disk full")

func (s failingStore) Atomically(ctx context.Context, id string, fn func(context.Context, learner.Tx) error) error {
	return s.MemoryStore.Atomically(ctx, id, func(ctx context.Context, tx learner.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errDiskFull
	})
}

func TestEngine_StorageFailureAppliesNothing(t *testing.T) {
	ctx := context.Background()
	mem := learner.NewMemoryStore()
	e, err := quiz.NewEngine(quiz.EngineConfig{Bank: testBank(t), Store: failingStore{mem}})
	require.NoError(t, err)
	require.NoError(t, e.EnsureLearner(ctx, "u", "u"))

	_, err = e.SubmitAnswer(ctx, "u", "A", "Q1", "yes")
	require.ErrorIs(t, err, quiz.ErrStorage)
	assert.ErrorIs(t, err, errDiskFull)
	assert.False(t, quiz.IsUserError(err))

	s, err := e.Summary(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 0, s.CorrectStreak)
	assert.Equal(t, 1.0, s.Weights["A"])

	attempts, err := mem.ListAttempts(ctx, "u")
	require.NoError(t, err)
	assert.Empty(t, attempts)
}
