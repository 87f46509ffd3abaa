// Package embedding maps text to vectors through eino's embedding.Embedder contract.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	errx "github.com/salescode-agent/server/internal/core/error"
)

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

type Config struct {
	Provider      string        `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	Model         string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	Dimensions    int           `envconfig:"EMBEDDING_DIMENSIONS"`
	BatchSize     int           `envconfig:"EMBEDDING_BATCH_SIZE" default:"32"`
	RateLimit     float64       `envconfig:"EMBEDDING_RATE_LIMIT" default:"0"`
	Timeout       time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"30s"`
	OllamaBaseURL string        `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	CacheSize     int           `envconfig:"EMBEDDING_CACHE_SIZE" default:"1024"`
	CacheTTL      time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"168h"`
}

// ModelID identifies the vector space produced by cfg. Two configs with the same
// ModelID produce comparable vectors. An explicit output dimensionality is part
// of the id, e.g. "gemini/text-embedding-004@256".
func (c Config) ModelID() string {
	if strings.EqualFold(c.Provider, ProviderHash) {
		return fmt.Sprintf("%s/%d", ProviderHash, c.hashDimensions())
	}
	id := strings.ToLower(c.Provider) + "/" + c.Model
	if c.Dimensions > 0 {
		id += "@" + strconv.Itoa(c.Dimensions)
	}
	return id
}

func (c Config) hashDimensions() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	return DefaultHashDimensions
}

// New builds the configured provider. genaiClient is only needed for the gemini provider.
func New(cfg Config, genaiClient *genai.Client) (embedding.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderGemini, "":
		if genaiClient == nil {
			return nil, errx.Config("gemini embedder needs a genai client")
		}
		return NewGemini(GeminiConfig{
			Client:     genaiClient,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			RateLimit:  cfg.RateLimit,
		})
	case ProviderOllama:
		return NewOllama(OllamaConfig{
			BaseURL:   cfg.OllamaBaseURL,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
		}), nil
	case ProviderHash:
		return NewHash(cfg.hashDimensions()), nil
	default:
		return nil, errx.Config("unknown embedding provider %q", cfg.Provider)
	}
}

// newLimiter returns nil when qps is not positive, meaning unlimited.
func newLimiter(qps float64) *rate.Limiter {
	if qps <= 0 {
		return nil
	}
	burst := int(qps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(qps), burst)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

// checkVectors rejects provider answers that cannot be indexed: wrong count,
// empty vectors, all-zero vectors or mixed dimensions.
func checkVectors(texts []string, vecs [][]float64) error {
	if len(vecs) != len(texts) {
		return errx.Embedding(fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(texts)))
	}
	dim := -1
	for i, v := range vecs {
		if len(v) == 0 {
			return errx.Embedding(fmt.Errorf("empty vector for text %d", i))
		}
		if dim >= 0 && len(v) != dim {
			return errx.Embedding(fmt.Errorf("vector %d has %d dimensions, previous had %d", i, len(v), dim))
		}
		dim = len(v)
		if isZero(v) {
			return errx.Embedding(errors.New("provider returned a zero vector"))
		}
	}
	return nil
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
