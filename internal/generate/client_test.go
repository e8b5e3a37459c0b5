package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashmind/card-engine/internal/domain"
	"github.com/flashmind/card-engine/internal/observability"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		APIKey:         "test-key",
		Model:          "test/model",
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
		Retry:          fastRetry(3),
	}, observability.NopLogger())
}

func chatReply(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(body)
}

func TestGenerateCardsParsesReply(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test/model", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Contains(t, req.Messages[0].Content, "segment text goes here")

		w.Write([]byte(chatReply("Q: What is in the segment?\nA: The segment text is in it.")))
	})

	cards, err := client.GenerateCards(context.Background(), "segment text goes here", 6)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "What is in the segment?", cards[0].Question)
}

func TestGenerateCardsTruncatesToMax(t *testing.T) {
	reply := ""
	for i := 0; i < 5; i++ {
		reply += "Q: What is repeated question variant " + string(rune('a'+i)) + "?\nA: A distinct answer variant " + string(rune('a'+i)) + ".\n\n"
	}
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(reply)))
	})

	cards, err := client.GenerateCards(context.Background(), "text", 2)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestGenerateCardsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(chatReply("Q: What finally worked out?\nA: The third attempt did.")))
	})

	cards, err := client.GenerateCards(context.Background(), "text", 6)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerateCardsDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.GenerateCards(context.Background(), "text", 6)
	require.Error(t, err)
	assert.Equal(t, domain.KindAPI, domain.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateQuizParsesReply(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply(`{"question": "Which?", "options": {"A": "x", "B": "y"}, "correct": "A"}`)))
	})

	quiz, err := client.GenerateQuiz(context.Background(), []CardContext{
		{Question: "q?", Answer: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Which?", quiz.Prompt)
	assert.Equal(t, "A", quiz.Correct)
}

func TestGenerateQuizBadOutputIsQuizGenerationFailed(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatReply("I cannot produce JSON today.")))
	})

	_, err := client.GenerateQuiz(context.Background(), []CardContext{
		{Question: "q?", Answer: "a"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindQuizGenerationFailed, domain.KindOf(err))
}

func TestGenerateQuizNoCards(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.GenerateQuiz(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindQuizGenerationFailed, domain.KindOf(err))
}

func TestEmptyChoicesIsAPIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	_, err := client.GenerateCards(context.Background(), "text", 6)
	require.Error(t, err)
	assert.Equal(t, domain.KindAPI, domain.KindOf(err))
}
