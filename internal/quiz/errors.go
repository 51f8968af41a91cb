package quiz

import (
	"errors"
	"fmt"

	"github.com/p-n-ai/quizbot/internal/bank"
	"github.com/p-n-ai/quizbot/internal/learner"
)

var (
	// ErrNotFound covers unknown learners, topics and question ids, including
	// an answer submitted for a question that is not in the given topic.
	ErrNotFound = errors.New("not found")
	// ErrEmptyPool means no question exists at the requested topic and difficulty.
	ErrEmptyPool = errors.New("no question available")
	// ErrStorage means the learner store failed. The operation was not applied.
	ErrStorage = errors.New("storage failure")
)

// storeErr classifies an error returned by the learner store.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, learner.ErrNotFound) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// bankErr classifies an error returned by the question bank.
func bankErr(err error) error {
	if errors.Is(err, bank.ErrTopicNotFound) || errors.Is(err, bank.ErrQuestionNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
