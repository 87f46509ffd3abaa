package conversations

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/salescode-agent/server/internal/agent/model"
)

// MessagesManager reads and writes the persisted transcript of a conversation.
// Only user turns and final assistant answers are persisted; tool exchanges live
// in the graph state of a single turn.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
	historyMessages  int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		historyMessages:  config.HistoryMessages,
	}
}

// SaveUserMessage appends the user query to the transcript.
func (cm *MessagesManager) SaveUserMessage(ctx context.Context, conversationID, query string) error {
	query = strings.TrimSpace(query)
	if conversationID == "" {
		return errors.New("conversation id is empty")
	}
	if query == "" {
		return errors.New("query is empty")
	}
	return cm.conversationRepo.AddMessage(ctx, conversationID, schema.UserMessage(query))
}

// BuildContext returns the system prompt followed by the recent transcript.
func (cm *MessagesManager) BuildContext(ctx context.Context, conversationID, systemPrompt string) ([]*schema.Message, error) {
	history, err := cm.conversationRepo.LoadHistory(ctx, conversationID, cm.historyMessages)
	if err != nil {
		return nil, err
	}

	messages := make([]*schema.Message, 0, len(history.Messages)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	for _, m := range dropLeadingAssistant(history.Messages) {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (cm *MessagesManager) SaveResponse(ctx context.Context, conversationID string, content string) error {
	return cm.conversationRepo.AddMessage(ctx, conversationID, schema.AssistantMessage(content, nil))
}

// dropLeadingAssistant trims a window that starts mid-exchange so the model
// always sees a user message first.
func dropLeadingAssistant(messages []*schema.Message) []*schema.Message {
	for i, m := range messages {
		if m != nil && m.Role == schema.User {
			return messages[i:]
		}
	}
	return nil
}
