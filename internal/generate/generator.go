// Package generate wraps the text-generation capability used to produce
// flashcards and quiz questions. The capability is treated as a black box
// behind the Generator interface so tests and alternative providers can
// substitute their own.
package generate

import "context"

// CardDraft is one question/answer pair produced from a text segment.
type CardDraft struct {
	Question string
	Answer   string
}

// CardContext is an already-produced card handed back as quiz context.
type CardContext struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// QuizDraft is a parsed multiple-choice question. Options maps a small set
// of labels (A..F) to option text; Correct names the right label.
type QuizDraft struct {
	Prompt  string            `json:"question"`
	Options map[string]string `json:"options"`
	Correct string            `json:"correct"`
}

// Generator produces study content from text. Implementations may be slow
// (seconds per call) and unreliable; callers decide retry policy.
type Generator interface {
	// GenerateCards derives up to maxCards question/answer pairs from one
	// text segment. An empty slice with a nil error is a valid outcome.
	GenerateCards(ctx context.Context, segment string, maxCards int) ([]CardDraft, error)

	// GenerateQuiz derives a single multiple-choice question from a small
	// ordered set of cards.
	GenerateQuiz(ctx context.Context, cards []CardContext) (*QuizDraft, error)
}
