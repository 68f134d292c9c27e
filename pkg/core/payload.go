package core

// PayloadKind tags the two shapes of message delivered to a node.
type PayloadKind string

const (
	// PayloadSequential carries a single upstream result.
	PayloadSequential PayloadKind = "sequential"

	// PayloadAggregated carries one message per predecessor, built when
	// a join node's barrier is released.
	PayloadAggregated PayloadKind = "aggregated"
)

// AggregatedMessage is one predecessor's contribution to a join payload.
type AggregatedMessage struct {
	Payload    any    `json:"payload"`
	FromNodeID string `json:"fromNodeId"`
}

// Payload is the unit passed along a handoff edge.
type Payload struct {
	Kind     PayloadKind         `json:"kind"`
	Content  any                 `json:"content,omitempty"`
	Messages []AggregatedMessage `json:"messages,omitempty"`
}

// NewSequentialPayload wraps a single upstream result.
func NewSequentialPayload(content any) Payload {
	return Payload{Kind: PayloadSequential, Content: content}
}

// NewAggregatedPayload wraps the buffered messages of a released join
// barrier, in arrival order.
func NewAggregatedPayload(messages []AggregatedMessage) Payload {
	return Payload{Kind: PayloadAggregated, Messages: messages}
}
