package model

import (
	"github.com/cloudwego/eino/schema"
)

// AppState is the graph local state of one turn, registered with compose.WithGenLocalState.
// It is only read or written inside state handlers or compose.ProcessState, which
// serialise access.
type AppState struct {
	ConversationID       string
	History              []*schema.Message
	ToolCallCount        int
	ToolCallLimitReached bool
	// ToolCallIDSeq synthesises tool call ids when the provider omits them.
	ToolCallIDSeq int
	TotalCostUSD  float64
}

// QueryInput is one user turn.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}
