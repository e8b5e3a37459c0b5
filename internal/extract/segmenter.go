package extract

import "strings"

// splitSegments breaks text into pieces no longer than maxChars each,
// preferring paragraph boundaries, then sentence boundaries, then a hard
// cut for pathological runs with no break points.
func splitSegments(text string, maxChars int) []string {
	var segments []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			segments = append(segments, s)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(para) > maxChars {
			flush()
			for _, piece := range splitOversized(para, maxChars) {
				segments = append(segments, piece)
			}
			continue
		}

		// +2 accounts for the paragraph separator being re-added.
		if current.Len() > 0 && current.Len()+len(para)+2 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return segments
}

// splitOversized handles a single paragraph longer than maxChars by
// accumulating sentences, hard-cutting any sentence that alone exceeds
// the bound.
func splitOversized(para string, maxChars int) []string {
	var pieces []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pieces = append(pieces, s)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(para) {
		if len(sentence) > maxChars {
			flush()
			for start := 0; start < len(sentence); start += maxChars {
				end := start + maxChars
				if end > len(sentence) {
					end = len(sentence)
				}
				pieces = append(pieces, strings.TrimSpace(sentence[start:end]))
			}
			continue
		}
		if current.Len() > 0 && current.Len()+len(sentence)+1 > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()

	return pieces
}

// splitSentences splits on sentence-ending punctuation followed by a space.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\n' {
				sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}
