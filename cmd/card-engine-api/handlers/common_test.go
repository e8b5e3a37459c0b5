package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashmind/card-engine/internal/domain"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound, "NotFound"},
		{"invalid document", domain.InvalidDocumentError("document is empty", nil), http.StatusBadRequest, "InvalidDocument"},
		{"too large", domain.DocumentTooLargeError("document exceeds the limit", nil), http.StatusRequestEntityTooLarge, "DocumentTooLarge"},
		{"unsupported format", domain.UnsupportedFormatError("unknown format", nil), http.StatusUnsupportedMediaType, "UnsupportedFormat"},
		{"quiz failure", domain.QuizGenerationError("unparsable output", nil), http.StatusBadGateway, "QuizGenerationFailed"},
		{"api failure", domain.APIError("upstream down", nil), http.StatusBadGateway, "API"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "Internal"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			var body ErrorDTO
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error)
		})
	}
}

func TestParseIDMapsBadUUIDToNotFound(t *testing.T) {
	_, err := parseID("not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
