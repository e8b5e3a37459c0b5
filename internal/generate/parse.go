package generate

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/flashmind/card-engine/internal/domain"
)

var (
	questionLinePattern = regexp.MustCompile(`(?i)^\s*Q(?:uestion)?(?:\s*\d+)?\s*[:.)]\s*(.*)$`)
	answerLinePattern   = regexp.MustCompile(`(?i)^\s*A(?:nswer)?(?:\s*\d+)?\s*[:.)]\s*(.*)$`)
	markerPattern       = regexp.MustCompile(`\[(?:QUESTION|ANSWER)_END\]`)
)

const (
	minQuestionChars = 10
	minAnswerChars   = 3
)

// ParseCards extracts question/answer pairs from raw model output. It
// first tries labeled Q:/A: pairs, then falls back to splitting free text
// on question marks and treating the following sentence as the answer.
// Unusable pairs are dropped; an empty result is not an error.
func ParseCards(raw string) []CardDraft {
	cleaned := markerPattern.ReplaceAllString(raw, "\n")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil
	}

	cards := parseLabeledPairs(cleaned)
	if len(cards) == 0 {
		cards = parseQuestionSplit(cleaned)
	}
	return cards
}

// parseLabeledPairs handles the Q:/A: format the prompt asks for. A
// question or answer may continue over several lines; a new Q: line
// closes the pair in progress.
func parseLabeledPairs(text string) []CardDraft {
	var cards []CardDraft
	var question, answer strings.Builder
	inAnswer := false

	flush := func() {
		q := normalizeQuestion(question.String())
		a := normalizeAnswer(answer.String())
		if usable(q, a) {
			cards = append(cards, CardDraft{Question: q, Answer: a})
		}
		question.Reset()
		answer.Reset()
		inAnswer = false
	}

	appendTo := func(sb *strings.Builder, s string) {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(strings.TrimSpace(s))
	}

	for _, line := range strings.Split(text, "\n") {
		if m := questionLinePattern.FindStringSubmatch(line); m != nil {
			flush()
			appendTo(&question, m[1])
			continue
		}
		if m := answerLinePattern.FindStringSubmatch(line); m != nil {
			inAnswer = true
			appendTo(&answer, m[1])
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if inAnswer {
			appendTo(&answer, line)
		} else if question.Len() > 0 {
			appendTo(&question, line)
		}
	}
	flush()

	return cards
}

// parseQuestionSplit handles unlabeled output: every '?' ends a question,
// and the first sentence after it is taken as the answer.
func parseQuestionSplit(text string) []CardDraft {
	parts := strings.Split(text, "?")
	if len(parts) < 2 {
		return nil
	}

	var cards []CardDraft
	for i := 0; i < len(parts)-1; i++ {
		question := normalizeQuestion(trailingClause(parts[i]))
		answer := normalizeAnswer(firstSentence(parts[i+1]))
		if usable(question, answer) {
			cards = append(cards, CardDraft{Question: question, Answer: answer})
		}
	}
	return cards
}

// trailingClause returns the text after the last sentence boundary, which
// in split output is the question preceding the '?'.
func trailingClause(chunk string) string {
	chunk = strings.TrimSpace(chunk)
	if idx := strings.LastIndexAny(chunk, ".!\n"); idx >= 0 {
		chunk = chunk[idx+1:]
	}
	return strings.TrimSpace(chunk)
}

// firstSentence returns text up to and including the first sentence-ending
// period, or the first line when no period is found.
func firstSentence(chunk string) string {
	chunk = strings.TrimSpace(chunk)
	if idx := strings.IndexAny(chunk, ".\n"); idx >= 0 {
		if chunk[idx] == '.' {
			return strings.TrimSpace(chunk[:idx+1])
		}
		return strings.TrimSpace(chunk[:idx])
	}
	return chunk
}

func normalizeQuestion(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*0123456789. )")
	s = strings.TrimSpace(s)
	if s != "" && !strings.HasSuffix(s, "?") {
		s += "?"
	}
	return s
}

func normalizeAnswer(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	return strings.TrimSpace(s)
}

func usable(question, answer string) bool {
	return len(question) >= minQuestionChars && len(answer) >= minAnswerChars
}

// ParseQuiz extracts and validates a multiple-choice question from raw
// model output. The JSON object may be wrapped in prose or code fences.
func ParseQuiz(raw string) (*QuizDraft, error) {
	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return nil, domain.QuizGenerationError("response contains no JSON object", nil)
	}

	var quiz QuizDraft
	if err := json.Unmarshal([]byte(jsonText), &quiz); err != nil {
		return nil, domain.QuizGenerationError("response is not valid JSON", err)
	}

	quiz.Prompt = strings.TrimSpace(quiz.Prompt)
	quiz.Correct = strings.ToUpper(strings.TrimSpace(quiz.Correct))

	if quiz.Prompt == "" {
		return nil, domain.QuizGenerationError("quiz question is empty", nil)
	}
	if len(quiz.Options) < 2 || len(quiz.Options) > 6 {
		return nil, domain.QuizGenerationError("quiz must have between 2 and 6 options", nil)
	}

	normalized := make(map[string]string, len(quiz.Options))
	for label, text := range quiz.Options {
		label = strings.ToUpper(strings.TrimSpace(label))
		text = strings.TrimSpace(text)
		if label == "" || text == "" {
			return nil, domain.QuizGenerationError("quiz option is empty", nil)
		}
		normalized[label] = text
	}
	quiz.Options = normalized

	if _, ok := quiz.Options[quiz.Correct]; !ok {
		return nil, domain.QuizGenerationError("correct label does not match any option", nil)
	}
	return &quiz, nil
}

// extractJSONObject returns the first balanced {...} span in text, which
// tolerates code fences and surrounding prose.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
