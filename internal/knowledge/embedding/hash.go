package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/components/embedding"

	errx "github.com/salescode-agent/server/internal/core/error"
)

const DefaultHashDimensions = 256

// Hash is an offline embedder: lowercase word tokens are hashed into a fixed number
// of signed buckets and the result is L2-normalised. Texts sharing words land
// close together, which is enough for local runs and tests.
type Hash struct {
	dim int
}

func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	return &Hash{dim: dim}
}

// Dimensions returns the vector length.
func (h *Hash) Dimensions() int { return h.dim }

// EmbedStrings implements embedding.Embedder.
func (h *Hash) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := h.vector(t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *Hash) vector(text string) ([]float64, error) {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		if strings.TrimSpace(text) == "" {
			return nil, errx.Embedding(errors.New("cannot embed blank text"))
		}
		tokens = []string{strings.TrimSpace(text)}
	}

	v := make([]float64, h.dim)
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		// opposite-signed collisions cancelled out
		v[0] = 1
		return v, nil
	}
	for i := range v {
		v[i] /= norm
	}
	return v, nil
}

var _ embedding.Embedder = (*Hash)(nil)
