package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSegmentsKeepsShortTextWhole(t *testing.T) {
	segments := splitSegments("A short paragraph.", 2000)
	require.Len(t, segments, 1)
	assert.Equal(t, "A short paragraph.", segments[0])
}

func TestSplitSegmentsGroupsParagraphsUpToBound(t *testing.T) {
	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird paragraph here."
	segments := splitSegments(text, 50)

	require.Len(t, segments, 3)
	assert.Equal(t, "First paragraph here.", segments[0])
	assert.Equal(t, "Second paragraph here.", segments[1])
	assert.Equal(t, "Third paragraph here.", segments[2])
}

func TestSplitSegmentsMergesSmallParagraphs(t *testing.T) {
	text := "One.\n\nTwo.\n\nThree."
	segments := splitSegments(text, 2000)

	require.Len(t, segments, 1)
	assert.Equal(t, "One.\n\nTwo.\n\nThree.", segments[0])
}

func TestSplitSegmentsRespectsBound(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("This is a sentence that fills up space in the paragraph. ")
	}
	segments := splitSegments(sb.String(), 400)

	require.NotEmpty(t, segments)
	for _, segment := range segments {
		assert.LessOrEqual(t, len(segment), 400)
		assert.NotEmpty(t, strings.TrimSpace(segment))
	}
}

func TestSplitSegmentsHardCutsUnbrokenRuns(t *testing.T) {
	text := strings.Repeat("x", 1000)
	segments := splitSegments(text, 300)

	require.Len(t, segments, 4)
	for _, segment := range segments {
		assert.LessOrEqual(t, len(segment), 300)
	}
}

func TestSplitSegmentsPreservesOrder(t *testing.T) {
	text := "Alpha paragraph.\n\nBravo paragraph.\n\nCharlie paragraph."
	segments := splitSegments(text, 20)

	require.Len(t, segments, 3)
	assert.Contains(t, segments[0], "Alpha")
	assert.Contains(t, segments[1], "Bravo")
	assert.Contains(t, segments[2], "Charlie")
}

func TestSplitSegmentsSkipsBlankParagraphs(t *testing.T) {
	segments := splitSegments("\n\n   \n\nReal content.\n\n\n\n", 2000)
	require.Len(t, segments, 1)
	assert.Equal(t, "Real content.", segments[0])
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("First one. Second one! Third one? Fourth")
	require.Len(t, sentences, 4)
	assert.Equal(t, "First one.", sentences[0])
	assert.Equal(t, "Second one!", sentences[1])
	assert.Equal(t, "Third one?", sentences[2])
	assert.Equal(t, "Fourth", sentences[3])
}

func TestSplitSentencesIgnoresDecimalPoints(t *testing.T) {
	sentences := splitSentences("The value is 3.14 exactly. Done.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "The value is 3.14 exactly.", sentences[0])
}
