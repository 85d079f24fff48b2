package agent

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/nextlevelbuilder/skillbase/internal/providers"
)

const tokenEncoding = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens estimates the token footprint of a message list. Uses the
// cl100k_base BPE; when the encoding cannot be loaded (offline first run)
// falls back to a 4-chars-per-token estimate.
func countTokens(msgs []providers.Message) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			slog.Warn("token encoding unavailable, using char estimate", "error", err)
			return
		}
		encoding = enc
	})

	total := 0
	for _, m := range msgs {
		if encoding != nil {
			total += len(encoding.Encode(m.Content, nil, nil))
		} else {
			total += utf8.RuneCountInString(m.Content) / 4
		}
		// Fixed per-message overhead for role and framing.
		total += 4
	}
	return total
}
