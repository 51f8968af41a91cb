package quiz

import (
	"github.com/p-n-ai/quizbot/internal/bank"
	"github.com/p-n-ai/quizbot/internal/learner"
)

const (
	// CorrectWeightDelta is applied to a topic's weight after a correct answer.
	CorrectWeightDelta = -0.3
	// WrongWeightDelta is applied to a topic's weight after a wrong answer.
	WrongWeightDelta = 0.5
	// PromoteStreak is the correct streak that moves a learner one level up.
	PromoteStreak = 3
	// DemoteStreak is the wrong streak that moves a learner one level down.
	DemoteStreak = 2
)

// step is the state change caused by one answer.
type step struct {
	correctStreak int
	wrongStreak   int
	weightDelta   float64
	difficulty    bank.Difficulty
}

func (s step) changed(from bank.Difficulty) bool {
	return s.difficulty != from
}

// advance computes the next streaks, weight delta and difficulty. Each answer
// zeroes the opposite streak, so at most one of the two level checks can hold.
// Streaks carry over a level change.
func advance(l learner.Learner, correct bool) step {
	s := step{difficulty: l.Difficulty}
	if correct {
		s.correctStreak = l.CorrectStreak + 1
		s.wrongStreak = 0
		s.weightDelta = CorrectWeightDelta
	} else {
		s.correctStreak = 0
		s.wrongStreak = l.WrongStreak + 1
		s.weightDelta = WrongWeightDelta
	}

	if s.correctStreak >= PromoteStreak {
		if next, ok := l.Difficulty.Harder(); ok {
			s.difficulty = next
		}
	}
	if s.wrongStreak >= DemoteStreak && !s.changed(l.Difficulty) {
		if next, ok := l.Difficulty.Easier(); ok {
			s.difficulty = next
		}
	}
	return s
}
