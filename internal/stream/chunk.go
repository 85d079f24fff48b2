package stream

// Kind tags a classified chunk. The aggregator switches on this tag and
// nothing else; producers assign it at classification time.
type Kind int

const (
	KindUnknown Kind = iota
	KindTextDelta
	KindReasoningDelta
	KindFullText
	KindFullReasoning
	KindToolResult
)

func (k Kind) String() string {
	switch k {
	case KindTextDelta:
		return "text_delta"
	case KindReasoningDelta:
		return "reasoning_delta"
	case KindFullText:
		return "full_text"
	case KindFullReasoning:
		return "full_reasoning"
	case KindToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Chunk is one classified unit of model output.
type Chunk struct {
	Kind   Kind
	Text   string
	ToolID string // set for KindToolResult
}
