package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/salescode-agent/server/internal/agent/model"
	logx "github.com/salescode-agent/server/pkg/logger"
)

// GenAIConfig selects the Gemini endpoint.
type GenAIConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
}

// NewGenAIClient creates the Gemini client shared by chat and embeddings.
func NewGenAIClient(ctx context.Context, cfg GenAIConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// ChatModel is the tool-calling model of the agent and its name for pricing.
type ChatModel struct {
	Model     einomodel.ChatModel
	ModelName string
}

// NewGeminiChatModel creates the agent chat model.
func NewGeminiChatModel(ctx context.Context, client *genai.Client, cfg model.ChatModelConfig) (*ChatModel, error) {
	gcfg := &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	}
	if cfg.ThinkingBudget > 0 {
		gcfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(cfg.ThinkingBudget),
		}
	}

	cm, err := gemini.NewChatModel(ctx, gcfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}
	return &ChatModel{Model: cm, ModelName: cfg.Model}, nil
}

// BindTools binds the tool schemas to the chat model.
func (cm *ChatModel) BindTools(ctx context.Context, tools []*schema.ToolInfo) error {
	if err := cm.Model.BindTools(tools); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to chat model")
	return nil
}
