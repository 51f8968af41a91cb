package quiz

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/p-n-ai/quizbot/internal/bank"
)

func twoTopicBank(t *testing.T) *bank.Bank {
	t.Helper()
	b, err := bank.New(
		bank.Topic{ID: "A", Questions: map[bank.Difficulty][]bank.Question{
			bank.Easy: {{ID: "Q1", Prompt: "1+1?", Options: []string{"2", "3"}, Answer: "2"}},
		}},
		bank.Topic{ID: "B", Questions: map[bank.Difficulty][]bank.Question{
			bank.Easy: {{ID: "Q2", Prompt: "2+2?", Options: []string{"4", "5"}, Answer: "4"}},
		}},
	)
	if err != nil {
		t.Fatalf("bank.New() error = %v", err)
	}
	return b
}

func TestSelector_WeightedDistribution(t *testing.T) {
	b := twoTopicBank(t)
	s := NewSelector(rand.NewPCG(1, 2))
	weights := map[string]float64{"A": 3.0, "B": 1.0}

	const draws = 10000
	counts := map[string]int{}
	for range draws {
		p, ok, err := s.Select(b, bank.Mixed, bank.Easy, weights)
		if err != nil || !ok {
			t.Fatalf("Select() = ok %v, err %v", ok, err)
		}
		counts[p.Topic]++
	}

	share := float64(counts["A"]) / draws
	// Standard deviation is about 0.0043 at n=10000; allow roughly 5 sigma.
	if math.Abs(share-0.75) > 0.02 {
		t.Errorf("topic A share = %.4f, want about 0.75 (counts %v)", share, counts)
	}
}

func TestSelector_MissingWeightDefaultsToInitial(t *testing.T) {
	b := twoTopicBank(t)
	s := NewSelector(rand.NewPCG(3, 4))

	counts := map[string]int{}
	for range 4000 {
		p, _, _ := s.Select(b, bank.Mixed, bank.Easy, nil)
		counts[p.Topic]++
	}
	if counts["A"] < 1800 || counts["B"] < 1800 {
		t.Errorf("counts = %v, want roughly even", counts)
	}
}

func TestSelector_SingleTopicScope(t *testing.T) {
	b := twoTopicBank(t)
	s := NewSelector(rand.NewPCG(5, 6))

	for range 100 {
		p, ok, err := s.Select(b, "B", bank.Easy, map[string]float64{"A": 100, "B": 0.1})
		if err != nil || !ok {
			t.Fatalf("Select() = ok %v, err %v", ok, err)
		}
		if p.Topic != "B" || p.Question.ID != "Q2" {
			t.Fatalf("Select() = %+v, want B/Q2", p)
		}
		if p.Difficulty != bank.Easy {
			t.Fatalf("Difficulty = %s, want easy", p.Difficulty)
		}
	}
}

func TestSelector_EmptyPool(t *testing.T) {
	b := twoTopicBank(t)
	s := NewSelector(rand.NewPCG(7, 8))

	for _, topic := range []string{"A", bank.Mixed} {
		_, ok, err := s.Select(b, topic, bank.Hard, nil)
		if err != nil {
			t.Fatalf("Select(%s) error = %v", topic, err)
		}
		if ok {
			t.Errorf("Select(%s, hard) ok = true, want empty pool", topic)
		}
	}
}

func TestSelector_UnknownTopic(t *testing.T) {
	b := twoTopicBank(t)
	if _, _, err := NewSelector(nil).Select(b, "Nope", bank.Easy, nil); err == nil {
		t.Fatal("Select() should fail for an unknown topic")
	}
}

func TestSelector_ZeroTotalFallsBackToUniform(t *testing.T) {
	s := NewSelector(rand.NewPCG(9, 10))
	pool := []candidate{
		{topic: "A", question: bank.Question{ID: "Q1"}},
		{topic: "B", question: bank.Question{ID: "Q2"}},
	}
	seen := map[string]bool{}
	for range 200 {
		seen[s.draw(pool).topic] = true
	}
	if !seen["A"] || !seen["B"] {
		t.Errorf("uniform fallback only returned %v", seen)
	}
}
