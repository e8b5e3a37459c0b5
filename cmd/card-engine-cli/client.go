// Package main provides the HTTP client the CLI uses against the API.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// APIClient is a thin client over the card engine HTTP API.
type APIClient struct {
	baseURL    string
	principal  string
	httpClient *http.Client
}

// NewAPIClient creates a client for the given server.
func NewAPIClient(baseURL, principal string) *APIClient {
	return &APIClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		principal: principal,
		// No overall timeout: the events endpoint streams until the job
		// finishes.
		httpClient: &http.Client{},
	}
}

func (c *APIClient) setHeaders(req *http.Request) {
	if c.principal != "" {
		req.Header.Set("X-Principal", c.principal)
	}
}

// UploadResponse mirrors the server's accepted-upload body.
type UploadResponse struct {
	JobID     string `json:"jobId"`
	DeckID    string `json:"deckId"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
}

// Upload posts a document file and returns the accepted job.
func (c *APIClient) Upload(ctx context.Context, path string) (*UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setHeaders(req)

	var resp UploadResponse
	if err := c.do(req, http.StatusAccepted, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamEvent is one decoded server-sent event.
type StreamEvent struct {
	Type string
	Data json.RawMessage
}

// FollowEvents connects to the job event stream and invokes handle for
// each event until the stream ends or ctx is canceled.
func (c *APIClient) FollowEvents(ctx context.Context, jobID string, handle func(StreamEvent) error) error {
	url := fmt.Sprintf("%s/api/v1/jobs/%s/events", c.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connect to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current StreamEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.Type != "" {
				if err := handle(current); err != nil {
					return err
				}
			}
			current = StreamEvent{}
		case strings.HasPrefix(line, "event:"):
			current.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			current.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return scanner.Err()
}

// DeckSummary mirrors the server's deck listing entry.
type DeckSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CardCount int       `json:"cardCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// Deck mirrors the server's deck detail body.
type Deck struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Cards     []Card    `json:"cards"`
}

// Card mirrors the server's card body.
type Card struct {
	ID       string `json:"id"`
	Seq      int    `json:"seq"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ListDecks returns the caller's decks.
func (c *APIClient) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/decks", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	var resp struct {
		Decks []DeckSummary `json:"decks"`
	}
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Decks, nil
}

// GetDeck returns one deck with its cards.
func (c *APIClient) GetDeck(ctx context.Context, id string) (*Deck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/decks/"+id, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	var deck Deck
	if err := c.do(req, http.StatusOK, &deck); err != nil {
		return nil, err
	}
	return &deck, nil
}

// DeleteDeck removes a deck.
func (c *APIClient) DeleteDeck(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/decks/"+id, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return c.decodeError(resp)
	}
	return nil
}

// QuizQuestion mirrors the server's quiz body.
type QuizQuestion struct {
	Prompt  string            `json:"question"`
	Options map[string]string `json:"options"`
	Correct string            `json:"correct"`
}

// SynthesizeQuiz posts cards and returns one multiple-choice question.
func (c *APIClient) SynthesizeQuiz(ctx context.Context, cards []Card) (*QuizQuestion, error) {
	type quizCard struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	payload := struct {
		Cards []quizCard `json:"cards"`
	}{}
	for _, card := range cards {
		payload.Cards = append(payload.Cards, quizCard{Question: card.Question, Answer: card.Answer})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/quiz", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	var quiz QuizQuestion
	if err := c.do(req, http.StatusOK, &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

// do executes a request, expecting one status, and decodes the JSON body.
func (c *APIClient) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError turns an API error body into a readable error.
func (c *APIClient) decodeError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("%s (%s, HTTP %d)", body.Message, body.Error, resp.StatusCode)
	}
	return fmt.Errorf("server returned HTTP %d", resp.StatusCode)
}
