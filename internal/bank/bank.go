// Package bank holds the read-only question catalog: topics, theory text and
// questions grouped by difficulty.
package bank

import (
	"fmt"
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Bank is an immutable catalog of topics. It is built once at startup and
// shared by reference; concurrent readers need no locking.
type Bank struct {
	order  []string
	topics map[string]Topic
}

// New builds a bank from topics in the given order. Question text is
// NFC-normalized and every topic is validated.
func New(topics ...Topic) (*Bank, error) {
	b := &Bank{
		order:  make([]string, 0, len(topics)),
		topics: make(map[string]Topic, len(topics)),
	}

	for _, t := range topics {
		if t.ID == "" {
			return nil, fmt.Errorf("topic id is empty")
		}
		if t.ID == Mixed {
			return nil, fmt.Errorf("topic id %q is reserved", Mixed)
		}
		if _, dup := b.topics[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic %q", t.ID)
		}

		normalized, err := normalizeTopic(t)
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", t.ID, err)
		}
		b.order = append(b.order, t.ID)
		b.topics[t.ID] = normalized
	}

	return b, nil
}

// Topics returns topic ids in catalog order.
func (b *Bank) Topics() []string {
	return slices.Clone(b.order)
}

// HasTopic reports whether id names a topic in the bank.
func (b *Bank) HasTopic(id string) bool {
	_, ok := b.topics[id]
	return ok
}

// QuestionsAt returns the questions of a topic at one difficulty, in catalog order.
// An empty slice is not an error.
func (b *Bank) QuestionsAt(topic string, d Difficulty) ([]Question, error) {
	t, ok := b.topics[topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	return slices.Clone(t.Questions[d]), nil
}

// QuestionByID finds a question by id within a topic, scanning every level.
// The level the question was found at is returned alongside it.
func (b *Bank) QuestionByID(topic, id string) (Question, Difficulty, error) {
	t, ok := b.topics[topic]
	if !ok {
		return Question{}, Easy, fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	for _, d := range Levels {
		for _, q := range t.Questions[d] {
			if q.ID == id {
				return q, d, nil
			}
		}
	}
	return Question{}, Easy, fmt.Errorf("%w: %s/%s", ErrQuestionNotFound, topic, id)
}

// Theory returns the theory text of a topic.
func (b *Bank) Theory(topic string) (string, error) {
	t, ok := b.topics[topic]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}
	return t.Theory, nil
}

// Count returns the number of questions per difficulty for a topic.
func (b *Bank) Count(topic string) map[Difficulty]int {
	t, ok := b.topics[topic]
	if !ok {
		return nil
	}
	counts := make(map[Difficulty]int, len(Levels))
	for _, d := range Levels {
		counts[d] = len(t.Questions[d])
	}
	return counts
}

func normalizeTopic(t Topic) (Topic, error) {
	out := Topic{
		ID:        t.ID,
		Theory:    t.Theory,
		Questions: make(map[Difficulty][]Question, len(t.Questions)),
	}

	seen := make(map[string]Difficulty)
	for d, qs := range t.Questions {
		if !d.Valid() {
			return Topic{}, fmt.Errorf("invalid difficulty %d", int(d))
		}
		list := make([]Question, 0, len(qs))
		for _, q := range qs {
			nq, err := normalizeQuestion(q)
			if err != nil {
				return Topic{}, err
			}
			if prev, dup := seen[nq.ID]; dup {
				return Topic{}, fmt.Errorf("duplicate question id %q (%s and %s)", nq.ID, prev, d)
			}
			seen[nq.ID] = d
			list = append(list, nq)
		}
		out.Questions[d] = list
	}
	return out, nil
}

func normalizeQuestion(q Question) (Question, error) {
	if q.ID == "" {
		return Question{}, fmt.Errorf("question id is empty")
	}
	if len(q.Options) < 2 {
		return Question{}, fmt.Errorf("question %q: needs at least 2 options, got %d", q.ID, len(q.Options))
	}

	out := Question{
		ID:      q.ID,
		Prompt:  normalize(q.Prompt),
		Options: make([]string, 0, len(q.Options)),
		Answer:  normalize(q.Answer),
	}
	for _, opt := range q.Options {
		n := normalize(opt)
		if slices.Contains(out.Options, n) {
			return Question{}, fmt.Errorf("question %q: duplicate option %q", q.ID, opt)
		}
		out.Options = append(out.Options, n)
	}
	if !slices.Contains(out.Options, out.Answer) {
		return Question{}, fmt.Errorf("question %q: answer %q is not one of the options", q.ID, q.Answer)
	}
	return out, nil
}

func normalize(s string) string {
	return norm.NFC.String(s)
}
