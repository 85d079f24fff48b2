package agent

import (
	"fmt"
	"unicode/utf8"

	"github.com/nextlevelbuilder/skillbase/internal/providers"
)

// History pruning keeps long-running conversations inside the model's
// context window by trimming old tool results. Skill content fetched many
// turns ago dominates the transcript and is rarely needed verbatim again.
const (
	defaultContextWindow = 32000 // tokens

	keepLastAssistants = 3
	softTrimRatio      = 0.3

	softTrimMaxChars  = 4000
	softTrimHeadChars = 1500
	softTrimTailChars = 1500
)

// pruneHistory trims old tool results when the transcript approaches the
// context window. Tool results newer than the last keepLastAssistants
// assistant messages are protected. Returns a new slice if any message was
// trimmed, otherwise the original.
func pruneHistory(msgs []providers.Message, contextWindowTokens int) []providers.Message {
	if contextWindowTokens <= 0 {
		contextWindowTokens = defaultContextWindow
	}
	if len(msgs) == 0 {
		return msgs
	}

	ratio := float64(countTokens(msgs)) / float64(contextWindowTokens)
	if ratio < softTrimRatio {
		return msgs
	}

	cutoff := findAssistantCutoff(msgs, keepLastAssistants)
	if cutoff < 0 {
		return msgs
	}

	var result []providers.Message
	for i := 0; i < cutoff; i++ {
		msg := msgs[i]
		if msg.Role != "tool" || utf8.RuneCountInString(msg.Content) <= softTrimMaxChars {
			continue
		}

		// Lazy copy
		if result == nil {
			result = make([]providers.Message, len(msgs))
			copy(result, msgs)
		}

		head := takeHead(msg.Content, softTrimHeadChars)
		tail := takeTail(msg.Content, softTrimTailChars)
		result[i] = providers.Message{
			Role: msg.Role,
			Content: fmt.Sprintf("%s\n...\n%s\n\n[Tool result trimmed: kept first %d and last %d chars.]",
				head, tail, softTrimHeadChars, softTrimTailChars),
			ToolCallID: msg.ToolCallID,
		}
	}

	if result == nil {
		return msgs
	}
	return result
}

// findAssistantCutoff returns the index of the Nth-from-last assistant
// message. Messages at or after this index are protected from pruning.
// Returns -1 if not enough assistant messages exist.
func findAssistantCutoff(msgs []providers.Message, keepLast int) int {
	if keepLast <= 0 {
		return len(msgs)
	}

	remaining := keepLast
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			remaining--
			if remaining == 0 {
				return i
			}
		}
	}
	return -1
}

// takeHead returns the first n runes of s.
func takeHead(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// takeTail returns the last n runes of s.
func takeTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
