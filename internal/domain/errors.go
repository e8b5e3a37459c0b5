// Package domain defines the error taxonomy shared across the card engine.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures by their caller-visible meaning.
type ErrorKind string

const (
	// KindInvalidDocument is a synchronous client error: the uploaded
	// document is empty or unreadable. No job is created.
	KindInvalidDocument ErrorKind = "InvalidDocument"
	// KindDocumentTooLarge is a synchronous client error: the uploaded
	// document exceeds the size bound. No job is created.
	KindDocumentTooLarge ErrorKind = "DocumentTooLarge"
	// KindUnsupportedFormat means the declared content kind is not one the
	// extractor knows how to read.
	KindUnsupportedFormat ErrorKind = "UnsupportedFormat"
	// KindCorruptDocument means the document could not be parsed, or parsed
	// to no text at all.
	KindCorruptDocument ErrorKind = "CorruptDocument"
	// KindExtractionFailed is the terminal job error for extraction-stage
	// failures that are neither of the two kinds above.
	KindExtractionFailed ErrorKind = "ExtractionFailed"
	// KindGenerationFailed is the terminal job error recorded when every
	// segment failed to yield a single card.
	KindGenerationFailed ErrorKind = "GenerationFailed"
	// KindQuizGenerationFailed is the synchronous quiz-path error for
	// unparsable or incomplete model output.
	KindQuizGenerationFailed ErrorKind = "QuizGenerationFailed"
	// KindAPI wraps transport-level failures talking to the model provider.
	KindAPI ErrorKind = "API"
	// KindDeckDeleted is the terminal stream signal subscribers receive
	// when a deck is deleted while its stream is still open.
	KindDeckDeleted ErrorKind = "DeckDeleted"
	// KindInterrupted marks a job orphaned mid-run by a restart, settled as
	// failed the next time its stream is read.
	KindInterrupted ErrorKind = "Interrupted"
)

// Sentinel errors for flow control.
var (
	ErrNotFound      = errors.New("record not found")
	ErrTerminalState = errors.New("job already reached a terminal status")
)

// DomainError carries an ErrorKind alongside the message and cause.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{Kind: kind, Message: message, Err: err}
}

// Common error constructors.
func InvalidDocumentError(message string, err error) *DomainError {
	return NewError(KindInvalidDocument, message, err)
}

func DocumentTooLargeError(message string, err error) *DomainError {
	return NewError(KindDocumentTooLarge, message, err)
}

func UnsupportedFormatError(message string, err error) *DomainError {
	return NewError(KindUnsupportedFormat, message, err)
}

func CorruptDocumentError(message string, err error) *DomainError {
	return NewError(KindCorruptDocument, message, err)
}

func ExtractionError(message string, err error) *DomainError {
	return NewError(KindExtractionFailed, message, err)
}

func GenerationError(message string, err error) *DomainError {
	return NewError(KindGenerationFailed, message, err)
}

func QuizGenerationError(message string, err error) *DomainError {
	return NewError(KindQuizGenerationFailed, message, err)
}

func APIError(message string, err error) *DomainError {
	return NewError(KindAPI, message, err)
}

// KindOf returns the ErrorKind carried by err, or an empty kind when err is
// not a DomainError.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err means a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
