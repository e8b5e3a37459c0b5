package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/flashmind/card-engine/internal/domain"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// JobRepository handles job CRUD operations.
type JobRepository struct {
	db DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job record.
func (r *JobRepository) Create(ctx context.Context, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `
		INSERT INTO jobs (id, owner, title, source_file, status, progress,
			error_kind, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID.String(), job.Owner, job.Title, job.SourceFile, job.Status,
		job.Progress, job.ErrorKind, job.ErrorMessage, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// GetByID retrieves a job by id.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `
		SELECT id, owner, title, source_file, status, progress,
			error_kind, error_message, created_at, updated_at
		FROM jobs WHERE id = $1
	`
	return r.scanJob(r.db.QueryRowContext(ctx, query, id.String()))
}

// List returns all jobs for an owner, newest first.
func (r *JobRepository) List(ctx context.Context, owner string) ([]*Job, error) {
	query := `
		SELECT id, owner, title, source_file, status, progress,
			error_kind, error_message, created_at, updated_at
		FROM jobs WHERE owner = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus persists a status transition.
func (r *JobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status JobStatus, errorKind, errorMessage string) error {
	query := `
		UPDATE jobs SET status = $1, error_kind = $2, error_message = $3, updated_at = $4
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query, status, errorKind, errorMessage, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateProgress persists a progress value.
func (r *JobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `UPDATE jobs SET progress = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, progress, time.Now().UTC(), id.String())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a job and, via cascade, its cards.
func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cards WHERE job_id = $1`, id.String()); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *JobRepository) scanJob(row *sql.Row) (*Job, error) {
	job := &Job{}
	var id string
	err := row.Scan(
		&id, &job.Owner, &job.Title, &job.SourceFile, &job.Status, &job.Progress,
		&job.ErrorKind, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.ID, err = uuid.Parse(id)
	return job, err
}

func scanJobRow(rows *sql.Rows) (*Job, error) {
	job := &Job{}
	var id string
	err := rows.Scan(
		&id, &job.Owner, &job.Title, &job.SourceFile, &job.Status, &job.Progress,
		&job.ErrorKind, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.ID, err = uuid.Parse(id)
	return job, err
}

// CardRepository handles card persistence.
type CardRepository struct {
	db DB
}

// NewCardRepository creates a new card repository.
func NewCardRepository(db DB) *CardRepository {
	return &CardRepository{db: db}
}

// Append inserts a card at the given sequence index.
func (r *CardRepository) Append(ctx context.Context, card *Card) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	card.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO cards (id, job_id, seq, question, answer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		card.ID.String(), card.JobID.String(), card.Seq, card.Question, card.Answer, card.CreatedAt,
	)
	return err
}

// ListByJob returns a job's cards in generation order.
func (r *CardRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]Card, error) {
	query := `
		SELECT id, job_id, seq, question, answer, created_at
		FROM cards WHERE job_id = $1
		ORDER BY seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, jobID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []Card
	for rows.Next() {
		var card Card
		var id, jid string
		if err := rows.Scan(&id, &jid, &card.Seq, &card.Question, &card.Answer, &card.CreatedAt); err != nil {
			return nil, err
		}
		if card.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if card.JobID, err = uuid.Parse(jid); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// CountByJob returns the number of cards appended to a job.
func (r *CardRepository) CountByJob(ctx context.Context, jobID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cards WHERE job_id = $1`, jobID.String(),
	).Scan(&count)
	return count, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
