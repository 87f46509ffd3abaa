// Package vectorstore persists embedded chunks in SQLite and answers nearest-neighbour queries.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	_ "modernc.org/sqlite"

	errx "github.com/salescode-agent/server/internal/core/error"
	logx "github.com/salescode-agent/server/pkg/logger"
)

const (
	DefaultDir        = "./vector_db"
	DefaultCollection = "inventory_data"
	DefaultTopK       = 4
	dbFile            = "index.db"

	// MetaDistance holds the cosine distance of a retrieved document to the query.
	MetaDistance = "distance"
)

type Config struct {
	Dir        string `envconfig:"INDEX_DIR" default:"./vector_db"`
	Collection string `envconfig:"INDEX_COLLECTION" default:"inventory_data"`
}

// Result is a stored document and its cosine distance to a query vector.
type Result struct {
	Document *schema.Document
	Distance float64
}

// Store is a named collection of embedded documents. It implements eino's
// indexer.Indexer and retriever.Retriever.
type Store struct {
	db         *sql.DB
	path       string
	collection string
	embedder   embedding.Embedder
	model      string
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS collections (
	name            TEXT PRIMARY KEY,
	dimension       INTEGER NOT NULL,
	embedding_model TEXT NOT NULL,
	created_at      DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	vector     BLOB NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Open creates or reopens the collection under cfg.Dir. model names the vector
// space of emb and is recorded with the collection.
func Open(cfg Config, emb embedding.Embedder, model string) (*Store, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	path := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}

	return &Store{
		db:         db,
		path:       path,
		collection: cfg.Collection,
		embedder:   emb,
		model:      model,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// collectionInfo returns the stored dimension and model, or ok=false when the
// collection has never been written.
func (s *Store) collectionInfo(ctx context.Context) (dim int, model string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT dimension, embedding_model FROM collections WHERE name = ?`, s.collection)
	if err := row.Scan(&dim, &model); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", false, nil
		}
		return 0, "", false, fmt.Errorf("reading collection: %w", err)
	}
	return dim, model, true, nil
}

// EnsureModel drops the collection when it was built with a different embedding
// model, since its vectors are no longer comparable. It reports whether a reset happened.
func (s *Store) EnsureModel(ctx context.Context) (bool, error) {
	_, model, ok, err := s.collectionInfo(ctx)
	if err != nil || !ok || model == s.model {
		return false, err
	}
	logx.Warn().Str("collection", s.collection).Str("was", model).Str("now", s.model).
		Msg("embedding model changed, dropping collection")
	return true, s.Clear(ctx)
}

// Store implements indexer.Indexer. Documents are upserted by id; vectors already
// attached to a document are used as is.
func (s *Store) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	o := indexer.GetCommonOptions(&indexer.Options{Embedding: s.embedder}, opts...)

	vecs, err := s.vectorsFor(ctx, docs, o.Embedding)
	if err != nil {
		return nil, err
	}

	dim, model, exists, err := s.collectionInfo(ctx)
	if err != nil {
		return nil, err
	}
	if exists && model != s.model {
		return nil, errx.Config("collection %q was built with %q, store uses %q", s.collection, model, s.model)
	}
	if !exists {
		dim = len(vecs[0])
	}
	for _, v := range vecs {
		if len(v) != dim {
			return nil, errx.DimensionMismatch(len(v), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	if !exists {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collections (name, dimension, embedding_model, created_at) VALUES (?, ?, ?, ?)`,
			s.collection, dim, s.model, now); err != nil {
			return nil, fmt.Errorf("creating collection: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (collection, id, content, metadata, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			vector = excluded.vector,
			updated_at = excluded.updated_at`)
	if err != nil {
		return nil, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("document %d has no id", i)
		}
		meta, err := json.Marshal(d.MetaData)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata of %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, d.ID, d.Content, string(meta), encodeVector(vecs[i]), now); err != nil {
			return nil, fmt.Errorf("upserting %s: %w", d.ID, err)
		}
		ids[i] = d.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func (s *Store) vectorsFor(ctx context.Context, docs []*schema.Document, emb embedding.Embedder) ([][]float64, error) {
	vecs := make([][]float64, len(docs))
	var (
		texts []string
		idx   []int
	)
	for i, d := range docs {
		if v := d.DenseVector(); len(v) > 0 {
			vecs[i] = v
			continue
		}
		texts = append(texts, d.Content)
		idx = append(idx, i)
	}
	if len(texts) == 0 {
		return vecs, nil
	}
	if emb == nil {
		return nil, errx.Config("no embedder configured for collection %q", s.collection)
	}
	out, err := emb.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, errx.Embedding(err)
	}
	if len(out) != len(texts) {
		return nil, errx.Embedding(fmt.Errorf("got %d vectors for %d documents", len(out), len(texts)))
	}
	for j, v := range out {
		vecs[idx[j]] = v
	}
	return vecs, nil
}

// Retrieve implements retriever.Retriever. Results are ordered by ascending
// cosine distance, carried in MetaDistance; Score is the cosine similarity.
// DSLInfo entries act as equality filters on metadata.
func (s *Store) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := DefaultTopK
	o := retriever.GetCommonOptions(&retriever.Options{TopK: &topK, Embedding: s.embedder}, opts...)
	if o.Embedding == nil {
		return nil, errx.Config("no embedder configured for collection %q", s.collection)
	}
	k := DefaultTopK
	if o.TopK != nil {
		k = *o.TopK
	}

	vecs, err := o.Embedding.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, errx.Embedding(err)
	}
	if len(vecs) != 1 {
		return nil, errx.Embedding(fmt.Errorf("got %d vectors for one query", len(vecs)))
	}

	results, err := s.SearchByVector(ctx, vecs[0], k, o.DSLInfo)
	if err != nil {
		return nil, err
	}

	docs := make([]*schema.Document, 0, len(results))
	for _, r := range results {
		if o.ScoreThreshold != nil && 1-r.Distance < *o.ScoreThreshold {
			continue
		}
		docs = append(docs, r.Document)
	}
	return docs, nil
}

// SearchByVector returns up to k entries closest to vec, ascending by distance.
// An empty or missing collection yields an empty result.
func (s *Store) SearchByVector(ctx context.Context, vec []float64, k int, filter map[string]any) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	dim, _, exists, err := s.collectionInfo(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	if len(vec) != dim {
		return nil, errx.DimensionMismatch(len(vec), dim)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, vector FROM entries WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("scanning collection: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			id, content, metaRaw string
			blob                 []byte
		)
		if err := rows.Scan(&id, &content, &metaRaw, &blob); err != nil {
			return nil, fmt.Errorf("reading entry: %w", err)
		}
		meta := map[string]any{}
		if err := json.Unmarshal([]byte(metaRaw), &meta); err != nil {
			return nil, fmt.Errorf("decoding metadata of %s: %w", id, err)
		}
		if !matches(meta, filter) {
			continue
		}
		dist := cosineDistance(vec, decodeVector(blob))
		meta[MetaDistance] = dist
		doc := (&schema.Document{ID: id, Content: content, MetaData: meta}).WithScore(1 - dist)
		results = append(results, Result{Document: doc, Distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance == results[j].Distance {
			return results[i].Document.ID < results[j].Document.ID
		}
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Prune deletes every entry whose id is not in keep and returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep []string) (int, error) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entries WHERE collection = ?`, s.collection)
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keepSet[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ? AND id = ?`, s.collection, id); err != nil {
			return 0, fmt.Errorf("deleting %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// Count returns the number of entries in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

// Clear removes the collection and all of its entries.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ?`, s.collection); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return err
	}
	return tx.Commit()
}

func matches(meta, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

func decodeVector(data []byte) []float64 {
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return out
}

var (
	_ indexer.Indexer     = (*Store)(nil)
	_ retriever.Retriever = (*Store)(nil)
)
