// Package chunker splits serialised catalog records into overlapping chunks.
package chunker

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"

	errx "github.com/salescode-agent/server/internal/core/error"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100

	// MetaChunkIndex is the metadata key holding a chunk's position in its source document.
	MetaChunkIndex = "chunk_index"
	// MetaSourceID is the metadata key holding the id of the source document.
	MetaSourceID = "source_id"
)

// DefaultSeparators are tried coarsest first: paragraph, sentence/line, word.
// Character-level cuts are the implicit last resort.
var DefaultSeparators = []string{"\n\n", ". ", "! ", "? ", "\n", " "}

// Splitter cuts text into windows of at most size runes. Consecutive windows of the
// same document share exactly overlap runes.
type Splitter struct {
	size       int
	overlap    int
	separators [][]rune
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSeparators replaces the boundary hierarchy, coarsest first.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) {
		s.separators = toRunes(seps)
	}
}

// New validates size and overlap and returns a Splitter.
func New(size, overlap int, opts ...Option) (*Splitter, error) {
	if size <= 0 {
		return nil, errx.Config("chunk_size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, errx.Config("chunk_overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, errx.Config("chunk_overlap (%d) must be smaller than chunk_size (%d)", overlap, size)
	}
	s := &Splitter{
		size:       size,
		overlap:    overlap,
		separators: toRunes(DefaultSeparators),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Split returns the chunks of a single text. Blank input yields nil.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start := 0
	for {
		limit := start + s.size
		if limit >= n {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}
		end := s.cut(runes, start, limit)
		chunks = append(chunks, string(runes[start:end]))
		start = end - s.overlap
	}
}

// cut picks the end of the window [start, limit). The cut must land after
// start+overlap so the next window makes progress.
func (s *Splitter) cut(runes []rune, start, limit int) int {
	minEnd := start + s.overlap + 1
	for _, sep := range s.separators {
		idx := lastIndex(runes[start:limit], sep)
		if idx < 0 {
			continue
		}
		end := start + idx + len(sep)
		if end >= minEnd {
			return end
		}
	}
	return limit
}

// Transform implements document.Transformer. Source metadata is copied to every
// chunk; chunk ids are "<source id>#<index>" and therefore stable across runs.
func (s *Splitter) Transform(ctx context.Context, src []*schema.Document, _ ...document.TransformerOption) ([]*schema.Document, error) {
	out := make([]*schema.Document, 0, len(src))
	for _, doc := range src {
		if doc == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, text := range s.Split(doc.Content) {
			meta := make(map[string]any, len(doc.MetaData)+2)
			for k, v := range doc.MetaData {
				meta[k] = v
			}
			meta[MetaChunkIndex] = i
			meta[MetaSourceID] = doc.ID
			out = append(out, &schema.Document{
				ID:       fmt.Sprintf("%s#%d", doc.ID, i),
				Content:  text,
				MetaData: meta,
			})
		}
	}
	return out, nil
}

// Size returns the configured maximum chunk length in runes.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap in runes.
func (s *Splitter) Overlap() int { return s.overlap }

func lastIndex(hay, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(hay) {
		return -1
	}
outer:
	for i := len(hay) - len(needle); i >= 0; i-- {
		for j := range needle {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func toRunes(seps []string) [][]rune {
	out := make([][]rune, 0, len(seps))
	for _, s := range seps {
		if s == "" {
			continue
		}
		out = append(out, []rune(s))
	}
	return out
}

var _ document.Transformer = (*Splitter)(nil)
