// Package config loads the agent configuration from the environment.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/salescode-agent/server/internal/agent/graph/nodes"
	"github.com/salescode-agent/server/internal/agent/model"
	"github.com/salescode-agent/server/internal/agent/tools"
	"github.com/salescode-agent/server/internal/catalog"
	"github.com/salescode-agent/server/internal/core"
	errx "github.com/salescode-agent/server/internal/core/error"
	"github.com/salescode-agent/server/internal/knowledge/chunker"
	"github.com/salescode-agent/server/internal/knowledge/embedding"
	"github.com/salescode-agent/server/internal/knowledge/vectorstore"
	pkgredis "github.com/salescode-agent/server/pkg/redis"
)

// ChunkConfig sizes the chunks written to the index.
type ChunkConfig struct {
	Size    int `envconfig:"CHUNK_SIZE" default:"500"`
	Overlap int `envconfig:"CHUNK_OVERLAP" default:"100"`
}

// AppConfig defines all configurable parameters of the agent, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Env string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis   pkgredis.Config
	Catalog catalog.Config
	Index   vectorstore.Config

	// Knowledge
	Embedding embedding.Config
	Chunk     ChunkConfig

	// LLM provider
	GenAI nodes.GenAIConfig

	// Agent
	ChatModel    model.ChatModelConfig
	Conversation model.ConversationConfig
	Prompt       model.PromptConfig
	Tools        tools.Config
}

// Environment returns the parsed APP_ENV.
func (c *AppConfig) Environment() core.Environment {
	return core.ParseEnvironment(c.Env)
}

// Load reads envFile when it exists, then the process environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errx.Config("reading %s: %v", envFile, err)
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errx.Config("processing environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *AppConfig) Validate() error {
	if _, err := chunker.New(c.Chunk.Size, c.Chunk.Overlap); err != nil {
		return err
	}
	if strings.TrimSpace(c.Catalog.BaseURL) == "" {
		return errx.Config("CATALOG_BASE_URL is required")
	}
	if strings.TrimSpace(c.Index.Collection) == "" {
		return errx.Config("INDEX_COLLECTION is required")
	}
	if c.Tools.LowStockThreshold < 0 {
		return errx.Config("LOW_STOCK_THRESHOLD must not be negative, got %d", c.Tools.LowStockThreshold)
	}
	if c.needsGemini() && strings.TrimSpace(c.GenAI.APIKey) == "" && strings.TrimSpace(c.GenAI.BaseURL) == "" {
		return errx.Config("GEMINI_API_KEY is required for embedding provider %q", c.Embedding.Provider)
	}
	return nil
}

// ValidateChat checks the settings the chat command needs on top of Validate.
func (c *AppConfig) ValidateChat() error {
	if strings.TrimSpace(c.GenAI.APIKey) == "" && strings.TrimSpace(c.GenAI.BaseURL) == "" {
		return errx.Config("GEMINI_API_KEY is required for the chat model")
	}
	if !c.Redis.Enabled() {
		return errx.Config("REDIS_URL is required for the chat transcript")
	}
	return nil
}

func (c *AppConfig) needsGemini() bool {
	p := strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	return p == "" || p == embedding.ProviderGemini
}
