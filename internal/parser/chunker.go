package parser

import (
	"fmt"
	"strings"

	"resume-rag/internal/models"
)

// separators in order of preference when a window boundary has to be chosen
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(" "),
}

// Chunk splits every page into passages of at most maxSize characters.
// Consecutive passages of a page share exactly overlap characters and no
// passage spans two pages.
func Chunk(pages []models.Page, maxSize, overlap int) ([]models.Passage, error) {
	if maxSize <= 0 {
		return nil, &models.ConfigurationError{Field: "chunk_size", Reason: "must be positive"}
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, &models.ConfigurationError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be in [0, %d)", maxSize)}
	}

	var passages []models.Passage
	for _, page := range pages {
		for i, content := range chunkContent(page.Text, maxSize, overlap) {
			passages = append(passages, models.Passage{
				Content: content,
				Page:    page.Index,
				ChunkID: i + 1,
				Seq:     len(passages),
			})
		}
	}
	return passages, nil
}

// chunk content into windows with maxChars and overlapChars
func chunkContent(content string, maxChars, overlapChars int) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	runes := []rune(content)
	if len(runes) <= maxChars {
		return []string{content}
	}

	var chunks []string
	start := 0
	for {
		if len(runes)-start <= maxChars {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		end := splitPoint(runes, start+overlapChars, start+maxChars)
		chunks = append(chunks, string(runes[start:end]))
		start = end - overlapChars
	}
}

// splitPoint returns the end of the window (lo, hi]: just past the last
// occurrence of the most preferred separator, or hi when none is present.
// Keeping the end above lo guarantees the next window moves forward.
func splitPoint(runes []rune, lo, hi int) int {
	for _, sep := range separators {
		for end := hi; end > lo; end-- {
			if hasSuffixAt(runes, end, sep) {
				return end
			}
		}
	}
	return hi
}

func hasSuffixAt(runes []rune, end int, sep []rune) bool {
	begin := end - len(sep)
	if begin < 0 {
		return false
	}
	for i, r := range sep {
		if runes[begin+i] != r {
			return false
		}
	}
	return true
}

// CompleteContent joins passages of one page back into its text by dropping
// the overlapping head of every passage after the first.
func CompleteContent(passages []models.Passage, overlapChars int) string {
	var content strings.Builder
	for i, p := range passages {
		runes := []rune(p.Content)
		if i > 0 && len(runes) >= overlapChars {
			runes = runes[overlapChars:]
		}
		content.WriteString(string(runes))
	}
	return content.String()
}
