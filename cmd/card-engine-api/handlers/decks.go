package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flashmind/card-engine/cmd/card-engine-api/middleware"
	"github.com/flashmind/card-engine/internal/cache"
	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/job"
	"github.com/flashmind/card-engine/internal/observability"
	"github.com/flashmind/card-engine/internal/storage"
)

// DecksHandler serves deck projections over finished and in-flight jobs.
type DecksHandler struct {
	logger   *observability.Logger
	manager  *job.Manager
	cache    cache.Client
	cacheTTL time.Duration
}

// NewDecksHandler creates a decks handler.
func NewDecksHandler(logger *observability.Logger, manager *job.Manager, cacheClient cache.Client, cacheTTL time.Duration) *DecksHandler {
	return &DecksHandler{
		logger:   logger,
		manager:  manager,
		cache:    cacheClient,
		cacheTTL: cacheTTL,
	}
}

// DeckListDTO is the API response for the deck listing.
type DeckListDTO struct {
	Decks []storage.DeckSummary `json:"decks"`
}

// List handles GET /api/v1/decks for the requesting principal.
func (h *DecksHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.PrincipalFromContext(ctx)

	key := deckListKey(principal)
	if cached, err := h.cache.Get(ctx, key); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	summaries, err := h.manager.ListDecks(ctx, principal)
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []storage.DeckSummary{}
	}

	body, err := json.Marshal(DeckListDTO{Decks: summaries})
	if err != nil {
		writeError(w, err)
		return
	}
	h.cache.Set(ctx, key, body, h.cacheTTL)

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Get handles GET /api/v1/decks/{deckId}. Decks belonging to another
// principal are indistinguishable from missing ones.
func (h *DecksHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.PrincipalFromContext(ctx)

	id, err := parseID(chi.URLParam(r, "deckId"))
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.manager.GetJob(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if record.Owner != principal {
		writeError(w, domain.ErrNotFound)
		return
	}

	// Only settled decks are cacheable; in-flight ones change under us.
	key := deckKey(id)
	if record.Status.Terminal() {
		if cached, err := h.cache.Get(ctx, key); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}
	}

	deck, err := h.manager.GetDeck(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := json.Marshal(deck)
	if err != nil {
		writeError(w, err)
		return
	}
	if record.Status.Terminal() {
		h.cache.Set(ctx, key, body, h.cacheTTL)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Delete handles DELETE /api/v1/decks/{deckId}. Deleting a deck with a
// running job cancels the job and ends its event stream with a
// deck-deleted error event.
func (h *DecksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.PrincipalFromContext(ctx)

	id, err := parseID(chi.URLParam(r, "deckId"))
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.manager.GetJob(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if record.Owner != principal {
		writeError(w, domain.ErrNotFound)
		return
	}

	if err := h.manager.DeleteDeck(ctx, id); err != nil {
		writeError(w, err)
		return
	}

	h.cache.Delete(ctx, deckKey(id))
	h.cache.Delete(ctx, deckListKey(principal))

	h.logger.Info().
		Str("deck_id", id.String()).
		Str("owner", principal).
		Msg("deck deleted via API")

	w.WriteHeader(http.StatusNoContent)
}
