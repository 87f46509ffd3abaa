package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"

	"github.com/salescode-agent/server/internal/agent/graph/nodes"
	"github.com/salescode-agent/server/internal/config"
	"github.com/salescode-agent/server/internal/knowledge/embedding"
	"github.com/salescode-agent/server/internal/knowledge/vectorstore"
	logx "github.com/salescode-agent/server/pkg/logger"
)

// openIndex builds the configured embedder behind the embedding cache and opens
// the vector index with it. rdb and genaiClient may be nil.
func openIndex(cfg *config.AppConfig, rdb *redis.Client, genaiClient *genai.Client) (*vectorstore.Store, error) {
	emb, err := embedding.New(cfg.Embedding, genaiClient)
	if err != nil {
		return nil, err
	}

	modelID := cfg.Embedding.ModelID()
	tiers := embedding.TieredCache{embedding.NewMemoryCache(cfg.Embedding.CacheSize)}
	if rdb != nil {
		tiers = append(tiers, embedding.NewRedisCache(rdb, cfg.Embedding.CacheTTL))
	}
	cached := embedding.NewCached(emb, tiers, modelID)

	store, err := vectorstore.Open(cfg.Index, cached, modelID)
	if err != nil {
		return nil, err
	}
	logx.Debug().
		Str("path", store.Path()).
		Str("collection", store.Collection()).
		Str("embedding_model", modelID).
		Msg("Vector index opened")
	return store, nil
}

// optionalRedis connects when REDIS_URL is set. Connection failures are fatal
// only when required is true.
func optionalRedis(ctx context.Context, cfg *config.AppConfig, required bool) (*redis.Client, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		if required {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logx.Warn().Err(err).Msg("Redis unavailable, embedding cache is memory only")
		return nil, nil
	}
	return rdb, nil
}

// genaiClientFor returns a Gemini client when the embedder or the chat model needs one.
func genaiClientFor(ctx context.Context, cfg *config.AppConfig, chat bool) (*genai.Client, error) {
	provider := strings.TrimSpace(cfg.Embedding.Provider)
	if !chat && provider != "" && !strings.EqualFold(provider, embedding.ProviderGemini) {
		return nil, nil
	}
	return nodes.NewGenAIClient(ctx, cfg.GenAI)
}
