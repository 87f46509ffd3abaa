// Package pipeline rebuilds the product knowledge base: catalog records are
// serialised, chunked, embedded and upserted into the vector index.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/salescode-agent/server/internal/catalog"
	logx "github.com/salescode-agent/server/pkg/logger"
)

// Catalog is the part of the catalog client the pipeline reads from.
type Catalog interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	RecentOrders(ctx context.Context) ([]catalog.Order, error)
}

// Index is a vector index that can drop entries a run did not produce.
type Index interface {
	indexer.Indexer
	Prune(ctx context.Context, keep []string) (int, error)
	EnsureModel(ctx context.Context) (bool, error)
}

type Report struct {
	Products int
	Orders   int
	Chunks   int
	Pruned   int
	Reset    bool
	Took     time.Duration
}

type Pipeline struct {
	catalog  Catalog
	splitter document.Transformer
	index    Index
}

func New(c Catalog, splitter document.Transformer, index Index) *Pipeline {
	return &Pipeline{catalog: c, splitter: splitter, index: index}
}

// Run indexes the whole catalog once. Catalog failures abort the run before the
// index is touched, including the reset after an embedding model change.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	load := compose.InvokableLambda(func(ctx context.Context, _ struct{}) ([]*schema.Document, error) {
		products, err := p.catalog.ListProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading products: %w", err)
		}
		orders, err := p.catalog.RecentOrders(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading recent orders: %w", err)
		}
		report.Products, report.Orders = len(products), len(orders)

		docs := make([]*schema.Document, 0, len(products)+len(orders))
		for _, prod := range products {
			docs = append(docs, ProductDocument(prod))
		}
		for _, o := range orders {
			docs = append(docs, OrderDocument(o))
		}
		return docs, nil
	})

	// The collection is only dropped for a model change once the catalog has loaded.
	ensureModel := compose.InvokableLambda(func(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error) {
		reset, err := p.index.EnsureModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("checking index model: %w", err)
		}
		report.Reset = reset
		return docs, nil
	})

	chain := compose.NewChain[struct{}, []string]()
	chain.
		AppendLambda(load, compose.WithNodeName("load_catalog")).
		AppendDocumentTransformer(p.splitter, compose.WithNodeName("chunk")).
		AppendLambda(ensureModel, compose.WithNodeName("ensure_model")).
		AppendIndexer(p.index, compose.WithNodeName("index"))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compiling index chain: %w", err)
	}

	ids, err := runnable.Invoke(ctx, struct{}{})
	if err != nil {
		return nil, err
	}
	report.Chunks = len(ids)

	pruned, err := p.index.Prune(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("pruning stale entries: %w", err)
	}
	report.Pruned = pruned
	report.Took = time.Since(start)

	logx.Info().
		Int("products", report.Products).
		Int("orders", report.Orders).
		Int("chunks", report.Chunks).
		Int("pruned", report.Pruned).
		Bool("reset", report.Reset).
		Dur("took", report.Took).
		Msg("index rebuilt")
	return report, nil
}
