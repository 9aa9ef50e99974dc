package pipeline

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/siherrmann/vaultrag/model"
)

// WindowChunker creates a chunker that cuts text into windows of at most maxChars bytes.
// A window ends after the last period (or newline) inside it when that break lies
// past the middle of the window, otherwise it is cut hard on a rune boundary.
// Chunks are trimmed and chunks shorter than model.MinChunkChars runes are dropped.
func WindowChunker(maxChars int) ChunkFunc {
	return func(text string) ([]TextChunk, error) {
		if maxChars <= 0 {
			return nil, fmt.Errorf("max chunk chars must be positive, got %d", maxChars)
		}

		chunks := []TextChunk{}
		start := 0
		for start < len(text) {
			end := windowEnd(text, start, maxChars)
			raw := text[start:end]

			leading := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
			content := strings.TrimSpace(raw)
			if utf8.RuneCountInString(content) >= model.MinChunkChars {
				chunks = append(chunks, TextChunk{
					Content:    content,
					StartPos:   start + leading,
					EndPos:     start + leading + len(content),
					ChunkIndex: len(chunks),
				})
			}

			start = end
		}

		return chunks, nil
	}
}

// windowEnd returns the exclusive end offset of the window starting at start.
func windowEnd(text string, start int, maxChars int) int {
	if len(text)-start <= maxChars {
		return len(text)
	}

	window := text[start : start+maxChars]
	half := maxChars / 2

	if i := strings.LastIndexByte(window, '.'); i > half {
		return start + i + 1
	}
	if i := strings.LastIndexByte(window, '\n'); i > half {
		return start + i + 1
	}

	end := start + maxChars
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == start {
		// window smaller than a single rune
		end = start + 1
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
	}
	return end
}
