package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/flashmind/card-engine/cmd/card-engine-api/middleware"
	"github.com/flashmind/card-engine/internal/cache"
	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/extract"
	"github.com/flashmind/card-engine/internal/job"
	"github.com/flashmind/card-engine/internal/observability"
)

// DocumentsHandler accepts document uploads and starts generation jobs.
type DocumentsHandler struct {
	logger   *observability.Logger
	manager  *job.Manager
	worker   *job.Worker
	cache    cache.Client
	maxBytes int64
}

// NewDocumentsHandler creates a documents handler.
func NewDocumentsHandler(logger *observability.Logger, manager *job.Manager, worker *job.Worker, cacheClient cache.Client, maxBytes int64) *DocumentsHandler {
	return &DocumentsHandler{
		logger:   logger,
		manager:  manager,
		worker:   worker,
		cache:    cacheClient,
		maxBytes: maxBytes,
	}
}

// UploadResponseDTO is the API response for an accepted upload. The job
// id is also the id of the deck the job will fill.
type UploadResponseDTO struct {
	JobID     string `json:"jobId"`
	DeckID    string `json:"deckId"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// Upload handles POST /api/v1/documents. The document arrives as a
// multipart form with a "file" part. Synchronous validation rejects
// empty, oversized, and unsupported uploads before any job exists; all
// later failures are reported through the job instead.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := middleware.PrincipalFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+4096)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, domain.DocumentTooLargeError(
				fmt.Sprintf("document exceeds the %d byte limit", h.maxBytes), err))
			return
		}
		writeError(w, domain.InvalidDocumentError("could not parse multipart upload", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.InvalidDocumentError("missing file part", err))
		return
	}
	defer file.Close()

	if header.Size == 0 {
		writeError(w, domain.InvalidDocumentError("document is empty", nil))
		return
	}
	if header.Size > h.maxBytes {
		writeError(w, domain.DocumentTooLargeError(
			fmt.Sprintf("document exceeds the %d byte limit", h.maxBytes), nil))
		return
	}

	kind, ok := resolveKind(header.Filename, header.Header.Get("Content-Type"))
	if !ok {
		writeError(w, domain.UnsupportedFormatError(
			"supported formats are plain text, markdown, and PDF", nil))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes))
	if err != nil {
		writeError(w, domain.InvalidDocumentError("could not read upload", err))
		return
	}

	created, err := h.manager.CreateJob(ctx, principal, header.Filename)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cache.Delete(ctx, deckListKey(principal))

	// The worker outlives the request; its context is canceled only by
	// deck deletion or process shutdown.
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.manager.RegisterCancel(created.ID, cancel)
	go h.worker.Run(workerCtx, created.ID, data, kind)

	h.logger.Info().
		Str("job_id", created.ID.String()).
		Str("owner", principal).
		Str("filename", header.Filename).
		Int64("bytes", header.Size).
		Msg("upload accepted")

	writeJSON(w, http.StatusAccepted, UploadResponseDTO{
		JobID:     created.ID.String(),
		DeckID:    created.ID.String(),
		Title:     created.Title,
		Status:    string(created.Status),
		CreatedAt: created.CreatedAt.Format(time.RFC3339),
	})
}

// resolveKind decides the document format from the declared content type,
// falling back to the filename extension.
func resolveKind(filename, contentType string) (extract.ContentKind, bool) {
	if contentType != "" {
		// Strip any media type parameters.
		if idx := strings.Index(contentType, ";"); idx >= 0 {
			contentType = contentType[:idx]
		}
		if kind, ok := extract.KindFromMediaType(contentType); ok {
			return kind, true
		}
		// Browsers send application/octet-stream for unknown files; fall
		// through to the extension in that case.
		if contentType != "application/octet-stream" {
			return "", false
		}
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".text":
		return extract.KindText, true
	case ".md", ".markdown":
		return extract.KindMarkdown, true
	case ".pdf":
		return extract.KindPDF, true
	}
	return "", false
}
