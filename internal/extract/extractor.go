// Package extract converts uploaded documents into bounded text segments
// ready for card generation.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"

	"github.com/flashmind/card-engine/internal/domain"
)

// ContentKind identifies a supported document format.
type ContentKind string

const (
	KindText     ContentKind = "text/plain"
	KindMarkdown ContentKind = "text/markdown"
	KindPDF      ContentKind = "application/pdf"
)

// KindFromMediaType maps a declared media type to a ContentKind. The
// second return is false for unsupported types.
func KindFromMediaType(mediaType string) (ContentKind, bool) {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "text/plain", "text", "txt":
		return KindText, true
	case "text/markdown", "text/x-markdown", "markdown", "md":
		return KindMarkdown, true
	case "application/pdf", "pdf":
		return KindPDF, true
	default:
		return "", false
	}
}

// Segment is one bounded unit of extracted text, in document order.
type Segment struct {
	Index int
	Text  string
}

// Config holds extraction settings.
type Config struct {
	MaxSegmentChars int
}

// Extractor is a pure transform from document bytes to ordered segments.
type Extractor struct {
	maxSegmentChars int
}

// NewExtractor creates an extractor with the given configuration.
func NewExtractor(cfg Config) *Extractor {
	maxChars := cfg.MaxSegmentChars
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Extractor{maxSegmentChars: maxChars}
}

// Extract converts raw bytes plus a declared content kind into ordered
// text segments. Fails with UnsupportedFormat or CorruptDocument.
func (e *Extractor) Extract(data []byte, kind ContentKind) ([]Segment, error) {
	var text string
	var err error

	switch kind {
	case KindText, KindMarkdown:
		if !utf8.Valid(data) {
			return nil, domain.CorruptDocumentError("document is not valid UTF-8 text", nil)
		}
		text = string(data)
	case KindPDF:
		text, err = extractPDF(data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, domain.UnsupportedFormatError("unsupported content kind: "+string(kind), nil)
	}

	pieces := splitSegments(text, e.maxSegmentChars)
	if len(pieces) == 0 {
		return nil, domain.CorruptDocumentError("document yielded no text", nil)
	}

	segments := make([]Segment, len(pieces))
	for i, piece := range pieces {
		segments[i] = Segment{Index: i, Text: piece}
	}
	return segments, nil
}

// extractPDF pulls plain text out of a PDF, page by page.
func extractPDF(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", domain.CorruptDocumentError("failed to open PDF", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		pageText, err := doc.Text(page)
		if err != nil {
			// A single unreadable page does not doom the document.
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n\n")
	}

	if strings.TrimSpace(sb.String()) == "" {
		return "", domain.CorruptDocumentError("PDF contains no extractable text", nil)
	}
	return sb.String(), nil
}
