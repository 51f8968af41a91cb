package bank

import (
	"errors"
	"fmt"
	"strings"
)

// Mixed is the topic sentinel meaning "draw from every topic".
const Mixed = "Mixed"

var (
	// ErrTopicNotFound is returned for topic ids the bank does not contain.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrQuestionNotFound is returned when no difficulty level of a topic holds the question id.
	ErrQuestionNotFound = errors.New("question not found")
)

// Difficulty is the ordered challenge level of a question.
type Difficulty int

const (
	Easy Difficulty = iota
	Medium
	Hard
)

// Levels lists every difficulty in ascending order.
var Levels = []Difficulty{Easy, Medium, Hard}

func (d Difficulty) String() string {
	switch d {
	case Easy:
		return "easy"
	case Medium:
		return "medium"
	case Hard:
		return "hard"
	default:
		return "unknown"
	}
}

// Valid reports whether d is one of the defined levels.
func (d Difficulty) Valid() bool {
	return d >= Easy && d <= Hard
}

// Harder returns the next level up and false if d is already the hardest.
func (d Difficulty) Harder() (Difficulty, bool) {
	if d >= Hard {
		return d, false
	}
	return d + 1, true
}

// Easier returns the next level down and false if d is already the easiest.
func (d Difficulty) Easier() (Difficulty, bool) {
	if d <= Easy {
		return d, false
	}
	return d - 1, true
}

// ParseDifficulty maps "easy", "medium" and "hard" (case-insensitive) to a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return Easy, nil
	case "medium":
		return Medium, nil
	case "hard":
		return Hard, nil
	default:
		return Easy, fmt.Errorf("unknown difficulty %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Difficulty) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid difficulty %d", int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Difficulty) UnmarshalText(b []byte) error {
	v, err := ParseDifficulty(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Question is a single multiple-choice item.
type Question struct {
	ID      string   `json:"id" yaml:"id"`
	Prompt  string   `json:"question" yaml:"question"`
	Options []string `json:"options" yaml:"options"`
	Answer  string   `json:"answer" yaml:"answer"`
}

// IsCorrect reports whether option is the designated answer.
func (q Question) IsCorrect(option string) bool {
	return normalize(option) == q.Answer
}

// Topic is a subject area with theory text and leveled questions.
type Topic struct {
	ID        string
	Theory    string
	Questions map[Difficulty][]Question
}

// catalogFile is the on-disk catalog layout.
type catalogFile struct {
	Order  []string                `json:"order,omitempty" yaml:"order,omitempty"`
	Topics map[string]catalogTopic `json:"topics" yaml:"topics"`
}

type catalogTopic struct {
	Theory    string                `json:"theory" yaml:"theory"`
	Questions map[string][]Question `json:"questions" yaml:"questions"`
}
