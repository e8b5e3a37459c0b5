// Package handlers provides HTTP handlers for the card engine API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/flashmind/card-engine/internal/domain"
)

// ErrorDTO is the JSON body for every error response.
type ErrorDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps a domain error onto an HTTP status and JSON body.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorDTO{Error: "NotFound", Message: "resource not found"})
		return
	}

	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindInvalidDocument:
		status = http.StatusBadRequest
	case domain.KindDocumentTooLarge:
		status = http.StatusRequestEntityTooLarge
	case domain.KindUnsupportedFormat:
		status = http.StatusUnsupportedMediaType
	case domain.KindQuizGenerationFailed, domain.KindAPI:
		status = http.StatusBadGateway
	}

	var de *domain.DomainError
	message := "internal error"
	name := "Internal"
	if errors.As(err, &de) {
		message = de.Message
		name = string(de.Kind)
	}
	writeJSON(w, status, ErrorDTO{Error: name, Message: message})
}

// parseID parses a UUID path parameter, mapping failure to NotFound so
// malformed ids and missing records look alike to clients.
func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ErrNotFound
	}
	return id, nil
}

// Cache key layout shared by the deck read paths and their invalidators.
func deckListKey(owner string) string { return "decks:" + owner }
func deckKey(id uuid.UUID) string     { return "deck:" + id.String() }
