package quiz

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/p-n-ai/quizbot/internal/bank"
	"github.com/p-n-ai/quizbot/internal/learner"
)

// Pick is a question chosen for a learner, with the topic it was drawn from.
// For a Mixed request Topic is the concrete topic, never Mixed.
type Pick struct {
	Topic      string
	Difficulty bank.Difficulty
	Question   bank.Question
}

type candidate struct {
	topic    string
	question bank.Question
	weight   float64
}

// Selector draws questions with probability proportional to the weight of
// their topic. Every question in a topic shares that topic's weight, so a
// topic with more questions at a level surfaces proportionally more often.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector. A nil source seeds from the clock.
func NewSelector(src rand.Source) *Selector {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>1|1)
	}
	return &Selector{rng: rand.New(src)}
}

// Select draws one question for topic (a topic id or bank.Mixed) at difficulty d.
// ok is false when the pool is empty. A topic missing from weights counts as
// learner.InitialWeight.
func (s *Selector) Select(b *bank.Bank, topic string, d bank.Difficulty, weights map[string]float64) (Pick, bool, error) {
	pool, err := buildPool(b, topic, d, weights)
	if err != nil {
		return Pick{}, false, err
	}
	if len(pool) == 0 {
		return Pick{}, false, nil
	}
	c := s.draw(pool)
	return Pick{Topic: c.topic, Difficulty: d, Question: c.question}, true, nil
}

func buildPool(b *bank.Bank, topic string, d bank.Difficulty, weights map[string]float64) ([]candidate, error) {
	scope := []string{topic}
	if topic == bank.Mixed {
		scope = b.Topics()
	}

	var pool []candidate
	for _, t := range scope {
		qs, err := b.QuestionsAt(t, d)
		if err != nil {
			return nil, err
		}
		w, ok := weights[t]
		if !ok {
			w = learner.InitialWeight
		}
		for _, q := range qs {
			pool = append(pool, candidate{topic: t, question: q, weight: w})
		}
	}
	return pool, nil
}

// draw walks the cumulative weights with half-open intervals [cum-w, cum).
// If rounding lets r escape every interval it falls back to a uniform pick.
func (s *Selector) draw(pool []candidate) candidate {
	var total float64
	for _, c := range pool {
		total += c.weight
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rng.Float64() * total
	var cum float64
	for _, c := range pool {
		cum += c.weight
		if r < cum {
			return c
		}
	}
	return pool[s.rng.IntN(len(pool))]
}
