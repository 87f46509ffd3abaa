package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type ConversationRepository interface {
	// AddMessage appends a message to the transcript of a conversation.
	AddMessage(ctx context.Context, conversationID string, message *schema.Message) error

	// LoadHistory returns the last limit messages of a conversation, all of them when limit <= 0.
	LoadHistory(ctx context.Context, conversationID string, limit int) (*ConversationHistory, error)

	ClearHistory(ctx context.Context, conversationID string) error

	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// ProductLedger remembers which product ids check_inventory returned in a conversation.
type ProductLedger interface {
	Record(ctx context.Context, conversationID string, productIDs ...string) error
	Contains(ctx context.Context, conversationID, productID string) (bool, error)
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	ConversationID string
	Messages       []*schema.Message
}
