// Package stream delivers ordered job progress events to any number of
// subscribers, replaying history to subscribers that attach late.
package stream

import (
	"github.com/flashmind/card-engine/internal/storage"
)

// EventType identifies the kind of a job event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventCard     EventType = "card"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is one entry in a job's event stream. Seq is assigned by the hub
// at publish time and is strictly increasing per job.
type Event struct {
	Seq  int64     `json:"seq"`
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == EventError || e.Type == EventComplete
}

// StatusData is the payload of a status event.
type StatusData struct {
	Status   storage.JobStatus `json:"status"`
	Progress int               `json:"progress"`
}

// CardData is the payload of a card event.
type CardData struct {
	Card storage.Card `json:"card"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CompleteData is the payload of a complete event.
type CompleteData struct {
	TotalCards int `json:"total_cards"`
}

// StatusEvent builds an unsequenced status event.
func StatusEvent(status storage.JobStatus, progress int) Event {
	return Event{Type: EventStatus, Data: StatusData{Status: status, Progress: progress}}
}

// CardEvent builds an unsequenced card event.
func CardEvent(card storage.Card) Event {
	return Event{Type: EventCard, Data: CardData{Card: card}}
}

// ErrorEvent builds an unsequenced error event.
func ErrorEvent(kind, message string) Event {
	return Event{Type: EventError, Data: ErrorData{Kind: kind, Message: message}}
}

// CompleteEvent builds an unsequenced complete event.
func CompleteEvent(totalCards int) Event {
	return Event{Type: EventComplete, Data: CompleteData{TotalCards: totalCards}}
}
