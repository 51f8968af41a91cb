package quiz

import (
	"testing"

	"github.com/p-n-ai/quizbot/internal/bank"
	"github.com/p-n-ai/quizbot/internal/learner"
)

func TestAdvance(t *testing.T) {
	tests := []struct {
		name      string
		in        learner.Learner
		correct   bool
		wantCS    int
		wantWS    int
		wantDelta float64
		wantLevel bank.Difficulty
	}{
		{"first correct", learner.Learner{Difficulty: bank.Easy}, true, 1, 0, CorrectWeightDelta, bank.Easy},
		{"correct resets wrong", learner.Learner{Difficulty: bank.Easy, WrongStreak: 1}, true, 1, 0, CorrectWeightDelta, bank.Easy},
		{"wrong resets correct", learner.Learner{Difficulty: bank.Easy, CorrectStreak: 2}, false, 0, 1, WrongWeightDelta, bank.Easy},
		{"third correct promotes", learner.Learner{Difficulty: bank.Easy, CorrectStreak: 2}, true, 3, 0, CorrectWeightDelta, bank.Medium},
		{"fourth correct promotes again", learner.Learner{Difficulty: bank.Medium, CorrectStreak: 3}, true, 4, 0, CorrectWeightDelta, bank.Hard},
		{"hard is the ceiling", learner.Learner{Difficulty: bank.Hard, CorrectStreak: 5}, true, 6, 0, CorrectWeightDelta, bank.Hard},
		{"second wrong demotes", learner.Learner{Difficulty: bank.Hard, WrongStreak: 1}, false, 0, 2, WrongWeightDelta, bank.Medium},
		{"easy is the floor", learner.Learner{Difficulty: bank.Easy, WrongStreak: 4}, false, 0, 5, WrongWeightDelta, bank.Easy},
		{"one wrong keeps level", learner.Learner{Difficulty: bank.Medium, CorrectStreak: 7}, false, 0, 1, WrongWeightDelta, bank.Medium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := advance(tt.in, tt.correct)
			if s.correctStreak != tt.wantCS || s.wrongStreak != tt.wantWS {
				t.Errorf("streaks = %d/%d, want %d/%d", s.correctStreak, s.wrongStreak, tt.wantCS, tt.wantWS)
			}
			if s.weightDelta != tt.wantDelta {
				t.Errorf("weightDelta = %v, want %v", s.weightDelta, tt.wantDelta)
			}
			if s.difficulty != tt.wantLevel {
				t.Errorf("difficulty = %s, want %s", s.difficulty, tt.wantLevel)
			}
		})
	}
}

func TestAdvance_AtMostOneStep(t *testing.T) {
	// Corrupt input with both streaks set still moves at most one level.
	in := learner.Learner{Difficulty: bank.Medium, CorrectStreak: 5, WrongStreak: 5}
	for _, correct := range []bool{true, false} {
		s := advance(in, correct)
		if s.correctStreak != 0 && s.wrongStreak != 0 {
			t.Errorf("advance(correct=%v) left both streaks nonzero", correct)
		}
		if s.difficulty != bank.Medium && s.difficulty != bank.Easy && s.difficulty != bank.Hard {
			t.Errorf("difficulty = %v out of range", s.difficulty)
		}
	}
}
