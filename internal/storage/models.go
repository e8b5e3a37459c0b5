// Package storage provides database models and repositories for the card engine.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a generation job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusExtracting JobStatus = "extracting"
	JobStatusGenerating JobStatus = "generating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether the status is a terminal one.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Job is the authoritative record of one document-to-deck generation task.
// Its id doubles as the deck id for the deck materialized from it.
type Job struct {
	ID           uuid.UUID
	Owner        string
	Title        string
	SourceFile   string
	Status       JobStatus
	Progress     int
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Card is a single question/answer flashcard. Immutable once appended;
// Seq is its position in generation order within the job.
type Card struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"jobId"`
	Seq       int       `json:"seq"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeckSummary is the listing projection over a job.
type DeckSummary struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Status    JobStatus `json:"status"`
	CardCount int       `json:"cardCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Deck is the detail projection: a job plus its cards in generation order.
type Deck struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Cards     []Card    `json:"cards"`
}
