package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/vaultrag/model"
)

const blockSeparator = "\n\n"

const assistantInstructions = "You are a study assistant helping a student with their own notes and files. " +
	"Answer the question using the numbered context below and cite the blocks you used as [n]. " +
	"If the context does not contain the answer, you may use general knowledge but say that it is not in the notes. " +
	"Write answers in Markdown and use LaTeX for math."

const noContextNote = "No relevant context was found in the notes."

// BuildContext formats results as numbered "[n] content" blocks in rank order.
// Blocks are added while the total stays within maxChars runes. A first result
// that alone exceeds the budget is cut on a rune boundary.
func BuildContext(results []*model.RetrievalResult, maxChars int) *model.ContextBlock {
	if maxChars <= 0 {
		maxChars = model.DefaultContextChars
	}

	block := &model.ContextBlock{Sources: []*model.RetrievalResult{}}

	var sb strings.Builder
	used := 0
	for _, result := range results {
		if result == nil || result.Chunk == nil {
			continue
		}

		entry := fmt.Sprintf("[%d] %s", len(block.Sources)+1, result.Chunk.Content)
		size := utf8.RuneCountInString(entry)
		if len(block.Sources) > 0 {
			size += len(blockSeparator)
		}

		if used+size > maxChars {
			block.Truncated = true
			if len(block.Sources) == 0 {
				sb.WriteString(truncateRunes(entry, maxChars))
				block.Sources = append(block.Sources, result)
			}
			break
		}

		if len(block.Sources) > 0 {
			sb.WriteString(blockSeparator)
		}
		sb.WriteString(entry)
		block.Sources = append(block.Sources, result)
		used += size
	}

	block.Text = sb.String()
	return block
}

// SystemPrompt returns the chat instructions with the context block appended.
func SystemPrompt(block *model.ContextBlock) string {
	if block == nil || block.Text == "" {
		return assistantInstructions + blockSeparator + noContextNote
	}
	return assistantInstructions + blockSeparator + "CONTEXT:\n" + block.Text
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
