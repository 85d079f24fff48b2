package stream

import (
	"github.com/nextlevelbuilder/skillbase/internal/providers"
)

// Classifier converts raw provider chunks into tagged chunks. One raw chunk
// may yield several tagged chunks (a legacy chunk can carry text and
// reasoning at once); a pure terminator yields none.
//
// The classifier is chosen once per model invocation from the provider's
// block capability and never changes mid-stream.
type Classifier interface {
	Classify(providers.StreamChunk) []Chunk
}

// NewClassifier selects the classification strategy for a provider.
// blocks selects the structured multi-block scheme; otherwise the legacy
// content + reasoning side-channel scheme is used.
func NewClassifier(blocks bool) Classifier {
	if blocks {
		return blockClassifier{}
	}
	return legacyClassifier{}
}

// blockClassifier handles providers that tag every output unit with an
// explicit block type.
type blockClassifier struct{}

func (blockClassifier) Classify(raw providers.StreamChunk) []Chunk {
	var out []Chunk
	for _, b := range raw.Blocks {
		switch b.Type {
		case providers.BlockText:
			out = append(out, Chunk{Kind: KindTextDelta, Text: b.Text})
		case providers.BlockThinking:
			out = append(out, Chunk{Kind: KindReasoningDelta, Text: b.Text})
		case providers.BlockToolResult:
			out = append(out, Chunk{Kind: KindToolResult, Text: b.Text, ToolID: b.ID})
		default:
			out = append(out, Chunk{Kind: KindUnknown, Text: b.Text})
		}
	}
	// Some wrappers synthesize plain-field chunks even for block-capable
	// models; treat those like legacy deltas rather than dropping them.
	if len(raw.Blocks) == 0 {
		out = append(out, legacyClassifier{}.Classify(raw)...)
	}
	return out
}

// legacyClassifier handles providers that stream plain content with
// reasoning on a side channel.
type legacyClassifier struct{}

func (legacyClassifier) Classify(raw providers.StreamChunk) []Chunk {
	var out []Chunk
	if raw.Reasoning != "" {
		out = append(out, Chunk{Kind: KindReasoningDelta, Text: raw.Reasoning})
	}
	if raw.Content != "" {
		out = append(out, Chunk{Kind: KindTextDelta, Text: raw.Content})
	}
	return out
}

// Recap converts a provider's whole-message recap into full-message chunks.
// The aggregator ignores them when deltas of the same kind already streamed,
// so feeding the recap after every invocation is safe.
func Recap(content, reasoning string) []Chunk {
	var out []Chunk
	if reasoning != "" {
		out = append(out, Chunk{Kind: KindFullReasoning, Text: reasoning})
	}
	if content != "" {
		out = append(out, Chunk{Kind: KindFullText, Text: content})
	}
	return out
}
