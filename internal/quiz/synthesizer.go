// Package quiz synthesizes multiple-choice questions from small sets of
// flashcards. It is independent of the job pipeline: callers pass cards
// in directly and get an answer synchronously.
package quiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/generate"
	"github.com/flashmind/card-engine/internal/observability"
)

// MaxCards bounds how many cards one quiz question may draw on.
const MaxCards = 5

// Synthesizer turns a handful of cards into one validated quiz question.
type Synthesizer struct {
	generator generate.Generator
	logger    *observability.Logger
}

// NewSynthesizer creates a quiz synthesizer.
func NewSynthesizer(generator generate.Generator, logger *observability.Logger) *Synthesizer {
	return &Synthesizer{
		generator: generator,
		logger:    logger.WithComponent("quiz"),
	}
}

// Synthesize validates the input cards and produces one multiple-choice
// question. Input problems surface as InvalidDocument-style client
// errors; bad model output surfaces as QuizGenerationFailed.
func (s *Synthesizer) Synthesize(ctx context.Context, cards []generate.CardContext) (*generate.QuizDraft, error) {
	if len(cards) == 0 {
		return nil, domain.InvalidDocumentError("at least one card is required", nil)
	}
	if len(cards) > MaxCards {
		return nil, domain.InvalidDocumentError(fmt.Sprintf("at most %d cards may be submitted", MaxCards), nil)
	}
	for i, card := range cards {
		if strings.TrimSpace(card.Question) == "" || strings.TrimSpace(card.Answer) == "" {
			return nil, domain.InvalidDocumentError(fmt.Sprintf("card %d has an empty question or answer", i+1), nil)
		}
	}

	quiz, err := s.generator.GenerateQuiz(ctx, cards)
	if err != nil {
		s.logger.Warn().Err(err).Int("cards", len(cards)).Msg("quiz synthesis failed")
		return nil, err
	}

	s.logger.Debug().
		Int("cards", len(cards)).
		Int("options", len(quiz.Options)).
		Msg("quiz synthesized")
	return quiz, nil
}
