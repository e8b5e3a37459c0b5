package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/generate"
	"github.com/flashmind/card-engine/internal/observability"
	"github.com/flashmind/card-engine/internal/quiz"
)

// QuizHandler serves synchronous quiz synthesis.
type QuizHandler struct {
	logger      *observability.Logger
	synthesizer *quiz.Synthesizer
}

// NewQuizHandler creates a quiz handler.
func NewQuizHandler(logger *observability.Logger, synthesizer *quiz.Synthesizer) *QuizHandler {
	return &QuizHandler{logger: logger, synthesizer: synthesizer}
}

// QuizRequestDTO is the API request for quiz synthesis.
type QuizRequestDTO struct {
	Cards []generate.CardContext `json:"cards"`
}

// Synthesize handles POST /api/v1/quiz. Unlike card generation this is
// synchronous: the caller waits for the question or an error.
func (h *QuizHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req QuizRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.InvalidDocumentError("invalid request body", err))
		return
	}

	result, err := h.synthesizer.Synthesize(ctx, req.Cards)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
