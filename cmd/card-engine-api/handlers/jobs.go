package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flashmind/card-engine/internal/job"
	"github.com/flashmind/card-engine/internal/observability"
	"github.com/flashmind/card-engine/internal/stream"
)

// JobsHandler serves job status and the job event stream.
type JobsHandler struct {
	logger  *observability.Logger
	manager *job.Manager
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(logger *observability.Logger, manager *job.Manager) *JobsHandler {
	return &JobsHandler{logger: logger, manager: manager}
}

// JobDTO is the API projection of a job.
type JobDTO struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	CardCount    int    `json:"cardCount"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// Get handles GET /api/v1/jobs/{jobId}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.manager.GetJob(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := h.manager.CardCount(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, JobDTO{
		ID:           record.ID.String(),
		Title:        record.Title,
		Status:       string(record.Status),
		Progress:     record.Progress,
		CardCount:    count,
		ErrorKind:    record.ErrorKind,
		ErrorMessage: record.ErrorMessage,
		CreatedAt:    record.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    record.UpdatedAt.Format(time.RFC3339),
	})
}

// Events handles GET /api/v1/jobs/{jobId}/events as a server-sent event
// stream. A subscriber always receives the job's full event history in
// order before live events; the stream ends after the terminal event.
func (h *JobsHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.manager.SubscribeEvents(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := h.logger.WithJob(id.String())
	logger.Debug().Msg("event stream attached")

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("event stream client disconnected")
			return
		case event, open := <-sub.Events:
			if !open {
				return
			}
			if err := writeSSE(w, event); err != nil {
				logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
			flusher.Flush()
			if event.Terminal() {
				logger.Debug().Int64("last_seq", event.Seq).Msg("event stream finished")
				return
			}
		}
	}
}

// writeSSE renders one event in server-sent event framing.
func writeSSE(w http.ResponseWriter, event stream.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, payload)
	return err
}
