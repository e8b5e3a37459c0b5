package job

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/extract"
	"github.com/flashmind/card-engine/internal/generate"
	"github.com/flashmind/card-engine/internal/observability"
	"github.com/flashmind/card-engine/internal/storage"
)

// WorkerConfig bounds a single generation run.
type WorkerConfig struct {
	MaxCardsPerJob     int
	MaxCardsPerSegment int
	SegmentRetries     int
}

// Worker runs the full pipeline for one uploaded document: extract into
// segments, generate cards per segment, append as they arrive, then
// settle the job into exactly one terminal state.
type Worker struct {
	manager   *Manager
	extractor *extract.Extractor
	generator generate.Generator
	cfg       WorkerConfig
	logger    *observability.Logger
}

// NewWorker creates a worker over the shared manager.
func NewWorker(manager *Manager, extractor *extract.Extractor, generator generate.Generator, cfg WorkerConfig, logger *observability.Logger) *Worker {
	if cfg.MaxCardsPerJob <= 0 {
		cfg.MaxCardsPerJob = 90
	}
	if cfg.MaxCardsPerSegment <= 0 {
		cfg.MaxCardsPerSegment = 6
	}
	return &Worker{
		manager:   manager,
		extractor: extractor,
		generator: generator,
		cfg:       cfg,
		logger:    logger.WithComponent("worker"),
	}
}

// Run executes the pipeline for one job. It never returns an error: every
// failure path ends in a terminal job state (or silence, when the job was
// deleted underneath it).
func (w *Worker) Run(ctx context.Context, jobID uuid.UUID, data []byte, kind extract.ContentKind) {
	logger := w.logger.WithJob(jobID.String())

	if err := w.manager.SetStatus(ctx, jobID, storage.JobStatusExtracting, 0); err != nil {
		w.abandon(logger, err, "set extracting")
		return
	}

	segments, err := w.extractor.Extract(data, kind)
	if err != nil {
		w.fail(ctx, jobID, extractionKind(err), err.Error())
		return
	}

	if err := w.manager.SetStatus(ctx, jobID, storage.JobStatusGenerating, 10); err != nil {
		w.abandon(logger, err, "set generating")
		return
	}

	seen := make(map[string]struct{})
	total := 0
	failedSegments := 0

	for i, segment := range segments {
		if ctx.Err() != nil {
			logger.Info().Msg("generation canceled")
			return
		}

		drafts, err := w.generateSegment(ctx, segment.Text)
		if err != nil {
			failedSegments++
			logger.Warn().
				Int("segment", i).
				Err(err).
				Msg("segment generation failed, continuing")
		}

		for _, draft := range drafts {
			if total >= w.cfg.MaxCardsPerJob {
				break
			}
			key := dedupeKey(draft.Question, draft.Answer)
			if _, dup := seen[key]; dup {
				continue
			}

			card, err := w.manager.AppendCard(ctx, jobID, draft.Question, draft.Answer)
			if err != nil {
				w.abandon(logger, err, "append card")
				return
			}
			if card == nil {
				// Job deleted mid-run.
				return
			}
			seen[key] = struct{}{}
			total++
		}

		if total >= w.cfg.MaxCardsPerJob {
			logger.Info().
				Int("total_cards", total).
				Int("segments_done", i+1).
				Int("segments_total", len(segments)).
				Msg("card cap reached, finishing early")
			break
		}

		// Extraction is the first 10%; the rest is apportioned over segments.
		progress := 10 + 90*(i+1)/len(segments)
		if err := w.manager.SetProgress(ctx, jobID, progress); err != nil {
			w.abandon(logger, err, "set progress")
			return
		}
	}

	if total == 0 {
		w.fail(ctx, jobID, domain.KindGenerationFailed, "no cards could be generated from the document")
		return
	}

	if failedSegments > 0 {
		// Partial results are still a completed deck; the gap is only logged.
		logger.Warn().
			Int("failed_segments", failedSegments).
			Int("segments_total", len(segments)).
			Int("total_cards", total).
			Msg("deck completed with partial generation")
	}

	if err := w.manager.Complete(ctx, jobID); err != nil {
		w.abandon(logger, err, "complete")
	}
}

// generateSegment calls the generator with the configured number of
// retries for this one segment.
func (w *Worker) generateSegment(ctx context.Context, text string) ([]generate.CardDraft, error) {
	var drafts []generate.CardDraft
	var err error
	for attempt := 0; attempt <= w.cfg.SegmentRetries; attempt++ {
		drafts, err = w.generator.GenerateCards(ctx, text, w.cfg.MaxCardsPerSegment)
		if err == nil {
			return drafts, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, err
}

// fail settles the job in the error state, tolerating a lost race with
// another terminal transition or a deletion.
func (w *Worker) fail(ctx context.Context, jobID uuid.UUID, kind domain.ErrorKind, message string) {
	err := w.manager.Fail(ctx, jobID, kind, message)
	if err != nil && !errors.Is(err, domain.ErrTerminalState) {
		w.logger.WithJob(jobID.String()).Error().Err(err).Msg("failed to record job failure")
	}
}

// abandon logs an unexpected manager error. Deletion races and terminal
// races are expected and logged quietly.
func (w *Worker) abandon(logger *observability.Logger, err error, op string) {
	if errors.Is(err, domain.ErrTerminalState) || domain.IsNotFound(err) {
		logger.Info().Str("op", op).Msg("job gone or settled, stopping worker")
		return
	}
	logger.Error().Str("op", op).Err(err).Msg("worker stopping on storage error")
}

// extractionKind maps an extraction error to its job error kind.
func extractionKind(err error) domain.ErrorKind {
	switch kind := domain.KindOf(err); kind {
	case domain.KindUnsupportedFormat, domain.KindCorruptDocument:
		return kind
	default:
		return domain.KindExtractionFailed
	}
}

// dedupeKey normalizes a question/answer pair for duplicate detection.
func dedupeKey(question, answer string) string {
	return strings.ToLower(strings.TrimSpace(question)) + "\x00" + strings.ToLower(strings.TrimSpace(answer))
}
