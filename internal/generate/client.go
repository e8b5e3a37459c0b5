package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/observability"
)

const defaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"

// ClientConfig holds settings for the OpenRouter-backed generator.
type ClientConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	RequestTimeout time.Duration
	Retry          RetryConfig
}

// Client is a Generator backed by the OpenRouter chat completions API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
	logger     *observability.Logger
}

// NewClient creates an OpenRouter generation client.
func NewClient(cfg ClientConfig, logger *observability.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retry:      cfg.Retry,
		logger:     logger.WithComponent("generate"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// GenerateCards asks the model for question/answer pairs covering one
// segment and parses whatever usable pairs come back.
func (c *Client) GenerateCards(ctx context.Context, segment string, maxCards int) ([]CardDraft, error) {
	prompt := cardPrompt(segment, maxCards)
	raw, err := c.complete(ctx, prompt, 0.7)
	if err != nil {
		return nil, err
	}

	cards := ParseCards(raw)
	if len(cards) > maxCards {
		cards = cards[:maxCards]
	}
	c.logger.Debug().
		Int("parsed_cards", len(cards)).
		Int("segment_chars", len(segment)).
		Msg("generated cards for segment")
	return cards, nil
}

// GenerateQuiz asks the model for one multiple-choice question derived
// from the given cards.
func (c *Client) GenerateQuiz(ctx context.Context, cards []CardContext) (*QuizDraft, error) {
	if len(cards) == 0 {
		return nil, domain.QuizGenerationError("no cards provided", nil)
	}

	prompt := quizPrompt(cards)
	raw, err := c.complete(ctx, prompt, 0.5)
	if err != nil {
		return nil, domain.QuizGenerationError("quiz request failed", err)
	}

	quiz, err := ParseQuiz(raw)
	if err != nil {
		return nil, err
	}
	return quiz, nil
}

// complete performs one chat completion with retries and returns the raw
// assistant message content.
func (c *Client) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var content string
	err = withRetry(ctx, c.retry, c.logger, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retryableError{fmt.Errorf("request failed: %w", err)}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return retryableError{fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode != http.StatusOK {
			apiErr := domain.APIError(fmt.Sprintf("api returned status %d", resp.StatusCode), nil)
			if shouldRetryStatus(resp.StatusCode) {
				return retryableError{apiErr}
			}
			return apiErr
		}

		var parsed chatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if parsed.Error != nil {
			return domain.APIError("api error: "+parsed.Error.Message, nil)
		}
		if len(parsed.Choices) == 0 {
			return domain.APIError("api returned no choices", nil)
		}
		content = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func cardPrompt(segment string, maxCards int) string {
	var sb strings.Builder
	sb.WriteString("You create study flashcards. From the text below, write up to ")
	fmt.Fprintf(&sb, "%d", maxCards)
	sb.WriteString(" question and answer pairs covering the key facts.\n")
	sb.WriteString("Format each pair on its own lines exactly as:\n")
	sb.WriteString("Q: <question>\nA: <answer>\n\n")
	sb.WriteString("Questions must be specific and answerable from the text alone. ")
	sb.WriteString("Answers must be one or two sentences. Do not number the pairs.\n\n")
	sb.WriteString("Text:\n")
	sb.WriteString(segment)
	return sb.String()
}

func quizPrompt(cards []CardContext) string {
	var sb strings.Builder
	sb.WriteString("You write multiple-choice quiz questions. Using the flashcards below, ")
	sb.WriteString("write ONE multiple-choice question with four options where exactly one is correct.\n")
	sb.WriteString("Respond with only a JSON object of this shape:\n")
	sb.WriteString(`{"question": "...", "options": {"A": "...", "B": "...", "C": "...", "D": "..."}, "correct": "A"}`)
	sb.WriteString("\n\nFlashcards:\n")
	for i, card := range cards {
		fmt.Fprintf(&sb, "%d. Q: %s\n   A: %s\n", i+1, card.Question, card.Answer)
	}
	return sb.String()
}
