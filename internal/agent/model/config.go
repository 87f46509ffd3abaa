package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL             time.Duration `envconfig:"CONVERSATION_TTL" default:"30m"`
	HistoryMessages int           `envconfig:"CONVERSATION_HISTORY_MESSAGES" default:"20"`
	Tools           struct {
		MaxCalls int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"10"`
	}
}

type ChatModelConfig struct {
	Model          string  `envconfig:"CHAT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens      int     `envconfig:"CHAT_MAX_TOKENS" default:"2000"`
	Temperature    float32 `envconfig:"CHAT_TEMPERATURE" default:"0"`
	ThinkingBudget int32   `envconfig:"CHAT_THINKING_BUDGET" default:"1024"`
}

type PromptConfig struct {
	AgentName    string `envconfig:"PROMPT_AGENT_NAME" default:"SCAI"`
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"Salescode"`
}
