package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	errx "github.com/salescode-agent/server/internal/core/error"
	logx "github.com/salescode-agent/server/pkg/logger"
)

const (
	DefaultGeminiModel     = "text-embedding-004"
	DefaultGeminiBatchSize = 32
	// Task type for documents and queries living in the same retrieval space.
	geminiTaskType = "RETRIEVAL_DOCUMENT"
)

type GeminiConfig struct {
	Client     *genai.Client
	Model      string
	Dimensions int
	BatchSize  int
	RateLimit  float64
}

// Gemini embeds through the genai Models.EmbedContent API.
type Gemini struct {
	client     *genai.Client
	model      string
	dimensions int
	batchSize  int
	limiter    *rate.Limiter
}

func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.Client == nil {
		return nil, errx.Config("genai client is nil")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultGeminiBatchSize
	}
	return &Gemini{
		client:     cfg.Client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		limiter:    newLimiter(cfg.RateLimit),
	}, nil
}

// EmbedStrings implements embedding.Embedder.
func (g *Gemini) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		batch := texts[start:end]

		if err := wait(ctx, g.limiter); err != nil {
			return nil, err
		}

		contents := make([]*genai.Content, len(batch))
		for i, t := range batch {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}
		cfg := &genai.EmbedContentConfig{TaskType: geminiTaskType}
		if g.dimensions > 0 {
			cfg.OutputDimensionality = genai.Ptr(int32(g.dimensions))
		}

		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, cfg)
		if err != nil {
			logx.Error().Err(err).Str("model", g.model).Int("batch", len(batch)).Msg("gemini embed failed")
			return nil, errx.Embedding(fmt.Errorf("gemini embed: %w", err))
		}

		vecs := make([][]float64, 0, len(resp.Embeddings))
		for _, e := range resp.Embeddings {
			if e == nil {
				vecs = append(vecs, nil)
				continue
			}
			v := make([]float64, len(e.Values))
			for i, x := range e.Values {
				v[i] = float64(x)
			}
			vecs = append(vecs, v)
		}
		if err := checkVectors(batch, vecs); err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

var _ embedding.Embedder = (*Gemini)(nil)
