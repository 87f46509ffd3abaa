package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salescode-agent/server/internal/agent/repo"
	"github.com/salescode-agent/server/internal/catalog"
	"github.com/salescode-agent/server/internal/core"
	errx "github.com/salescode-agent/server/internal/core/error"
	"github.com/salescode-agent/server/internal/knowledge/embedding"
	"github.com/salescode-agent/server/internal/knowledge/pipeline"
	"github.com/salescode-agent/server/internal/knowledge/vectorstore"
	logx "github.com/salescode-agent/server/pkg/logger"
)

type fakeCatalog struct {
	products   []catalog.Product
	searchErr  error
	orderErr   error
	conf       *catalog.OrderConfirmation
	orderCalls int
	lastOrder  catalog.OrderRequest
}

func (f *fakeCatalog) SearchProducts(_ context.Context, query string) ([]catalog.Product, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []catalog.Product
	for _, p := range f.products {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(query)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) PlaceOrder(_ context.Context, req catalog.OrderRequest) (*catalog.OrderConfirmation, error) {
	f.orderCalls++
	f.lastOrder = req
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	if f.conf != nil {
		return f.conf, nil
	}
	return &catalog.OrderConfirmation{}, nil
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, string, ...retriever.Option) ([]*schema.Document, error) {
	return nil, errx.Embedding(errors.New("quota exceeded"))
}

var testProducts = []catalog.Product{
	{ID: "COKE_001", Name: "Coca-Cola 500ml", Price: 1.5, Stock: 120, Brand: "Coca-Cola"},
	{ID: "PEPSI_001", Name: "Pepsi 500ml", Price: 1.4, Stock: 8, Brand: "Pepsi"},
	{ID: "CHIPS_001", Name: "Potato Chips Salted", Price: 2.25, Stock: 0, Brand: "Lays"},
	{ID: "SALSA_001", Name: "Tomato Salsa Dip", Price: 3.1, Stock: 35, Brand: "Old El Paso"},
}

type env struct {
	registry *Registry
	catalog  *fakeCatalog
	ledger   *repo.RedisProductLedger
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	ctx := context.Background()

	store, err := vectorstore.Open(vectorstore.Config{Dir: t.TempDir()}, embedding.NewHash(128), "hash/128")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var docs []*schema.Document
	for _, p := range testProducts {
		d := pipeline.ProductDocument(p)
		d.ID += "#0"
		docs = append(docs, d)
	}
	docs = append(docs, func() *schema.Document {
		d := pipeline.OrderDocument(catalog.Order{OrderID: "O1", ProductID: "COKE_001", Quantity: 30, Date: "2025-01-03"})
		d.ID += "#0"
		return d
	}())
	_, err = store.Store(ctx, docs)
	require.NoError(t, err)

	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fc := &fakeCatalog{products: append([]catalog.Product(nil), testProducts...)}
	ledger := repo.NewRedisProductLedger(rdb, time.Hour)
	r, err := NewRegistry(Deps{
		Retriever: store,
		Catalog:   fc,
		Ledger:    ledger,
		Config:    cfg,
		Now:       func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return &env{registry: r, catalog: fc, ledger: ledger}
}

func run(t *testing.T, r *Registry, ctx context.Context, name ToolName, args string) string {
	t.Helper()
	tl, ok := r.Get(name)
	require.True(t, ok)
	out, err := tl.InvokableRun(ctx, SanitizeArguments(string(name), args))
	require.NoError(t, err, "tools report failures as results")
	return out
}

func TestRegistry_ClosedSet(t *testing.T) {
	e := newEnv(t, Config{})
	infos, err := e.registry.Infos(context.Background())
	require.NoError(t, err)

	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"check_inventory", "calculate_discount", "recommend_cross_sell", "place_order"}, names)
	assert.Len(t, e.registry.Tools(), 4)
	assert.True(t, Known("place_order"))
	assert.False(t, Known("delete_inventory"))

	_, err = NewRegistry(Deps{Catalog: &fakeCatalog{}})
	assert.Error(t, err)
}

func TestQuoteOrder(t *testing.T) {
	tests := []struct {
		price           float64
		qty             int
		total, savings  string
		standard        string
		discountApplied bool
	}{
		{10, 20, "190.00", "10.00", "200.00", true},
		{10, 25, "237.50", "12.50", "250.00", true},
		{10, 5, "50.00", "0.00", "50.00", false},
		{1.4, 19, "26.60", "0.00", "26.60", false},
		{0.33, 21, "6.58", "0.35", "6.93", true},
	}
	for _, tt := range tests {
		q := QuoteOrder(tt.price, tt.qty)
		assert.Equal(t, tt.total, q.Total.StringFixed(2), "%v x %d", tt.price, tt.qty)
		assert.Equal(t, tt.savings, q.Savings.StringFixed(2), "%v x %d", tt.price, tt.qty)
		assert.Equal(t, tt.standard, q.Standard.StringFixed(2), "%v x %d", tt.price, tt.qty)
		assert.Equal(t, tt.discountApplied, q.Discounted())
	}
}

func TestCalculateDiscount(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()

	out := run(t, e.registry, ctx, ToolCalculateDiscount, `{"price":10,"quantity":20}`)
	assert.Contains(t, out, "Standard total: 200.00")
	assert.Contains(t, out, "Discounted total: 190.00")
	assert.Contains(t, out, "Savings: 10.00")

	out = run(t, e.registry, ctx, ToolCalculateDiscount, `{"price":"10","quantity":"5"}`)
	assert.Contains(t, out, "Discounted total: 50.00")
	assert.Contains(t, out, "At 20 units the total would be 190.00, saving 10.00.")

	out = run(t, e.registry, ctx, ToolCalculateDiscount, `{"price":10,"quantity":0}`)
	assert.True(t, strings.HasPrefix(out, "Cannot calculate discount"), out)
}

func TestCheckInventory(t *testing.T) {
	e := newEnv(t, Config{LiveRefresh: false, LowStockThreshold: 20})
	ctx := WithConversationID(context.Background(), "conv-1")

	var out InventoryOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, e.registry, ctx, ToolCheckInventory, `{"item_name":" pepsi "}`)), &out))
	require.NotEmpty(t, out.Matches)
	assert.LessOrEqual(t, len(out.Matches), 3)

	top := out.Matches[0]
	assert.Equal(t, "PEPSI_001", top.ID)
	assert.Equal(t, 8, top.Stock)
	assert.InDelta(t, 1.4, top.Price, 1e-9)
	assert.True(t, top.LowStock)

	ids := map[string]bool{}
	for _, m := range out.Matches {
		assert.False(t, ids[m.ID], "duplicate id %s", m.ID)
		ids[m.ID] = true
		assert.NotEqual(t, "O1", m.ID, "orders are not inventory matches")
	}

	ok, err := e.ledger.Contains(ctx, "conv-1", "PEPSI_001")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckInventory_LiveRefresh(t *testing.T) {
	e := newEnv(t, Config{LiveRefresh: true})
	e.catalog.products[0].Stock = 3
	ctx := WithConversationID(context.Background(), "conv-1")

	var out InventoryOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, e.registry, ctx, ToolCheckInventory, `{"item_name":"coca cola"}`)), &out))
	require.NotEmpty(t, out.Matches)
	assert.Equal(t, "COKE_001", out.Matches[0].ID)
	assert.Equal(t, 3, out.Matches[0].Stock)
	assert.True(t, out.Matches[0].LowStock)
	assert.Empty(t, out.Message)

	e.catalog.searchErr = errx.UpstreamUnavailable(errors.New("connection refused"))
	require.NoError(t, json.Unmarshal([]byte(run(t, e.registry, ctx, ToolCheckInventory, `{"item_name":"coca cola"}`)), &out))
	assert.Equal(t, 120, out.Matches[0].Stock, "falls back to indexed stock")
	assert.Contains(t, out.Message, "last index run")
}

func TestCheckInventory_Failures(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()

	var out InventoryOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, e.registry, ctx, ToolCheckInventory, `{"item_name":"  "}`)), &out))
	assert.Empty(t, out.Matches)
	assert.Contains(t, out.Message, "item_name is required")

	broken, err := NewRegistry(Deps{Retriever: failingRetriever{}, Catalog: &fakeCatalog{}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(run(t, broken, ctx, ToolCheckInventory, `{"item_name":"cola"}`)), &out))
	assert.Empty(t, out.Matches)
	assert.Contains(t, out.Message, "unavailable")
}

func TestRecommendCrossSell(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()

	var out CrossSellOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, e.registry, ctx, ToolRecommendCrossSell, `{"product_name":"Potato Chips Salted"}`)), &out))
	require.NotEmpty(t, out.Recommendations)
	assert.LessOrEqual(t, len(out.Recommendations), 5)
	for _, rec := range out.Recommendations {
		assert.NotEqual(t, "CHIPS_001", rec.ID, "the queried product is excluded")
		assert.NotEmpty(t, rec.Details)
	}

	broken, err := NewRegistry(Deps{Retriever: failingRetriever{}, Catalog: &fakeCatalog{}})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(run(t, broken, ctx, ToolRecommendCrossSell, `{"product_name":"chips"}`)), &out))
	assert.Empty(t, out.Recommendations)
}

func TestPlaceOrder(t *testing.T) {
	t.Run("receipt with discount", func(t *testing.T) {
		e := newEnv(t, Config{})
		e.catalog.conf = &catalog.OrderConfirmation{OrderID: "ORD-42", Date: "2025-03-04"}
		ctx := WithConversationID(context.Background(), "conv-1")
		require.NoError(t, e.ledger.Record(ctx, "conv-1", "COKE_001"))

		out := run(t, e.registry, ctx, ToolPlaceOrder, `{"product_id":"COKE_001","product_name":"Coca-Cola 500ml","quantity":25,"unit_price":10}`)
		assert.Equal(t, "ORDER CONFIRMED\nOrder ID: ORD-42\nDate: 2025-03-04\nProduct: Coca-Cola 500ml\nProduct ID: COKE_001\nQuantity: 25\nTotal: 237.50", out)
		assert.Equal(t, catalog.OrderRequest{ProductID: "COKE_001", Quantity: 25}, e.catalog.lastOrder)
	})

	t.Run("no discount below threshold, generated id", func(t *testing.T) {
		e := newEnv(t, Config{})
		ctx := WithConversationID(context.Background(), "conv-1")
		require.NoError(t, e.ledger.Record(ctx, "conv-1", "COKE_001"))

		out := run(t, e.registry, ctx, ToolPlaceOrder, `{"product_id":"COKE_001","product_name":"Coca-Cola 500ml","quantity":5,"unit_price":10}`)
		assert.Contains(t, out, "Total: 50.00")
		assert.Contains(t, out, "Date: 2025-03-04")
		assert.Regexp(t, `Order ID: ORD-[0-9A-F]{8}\n`, out)
	})

	t.Run("unknown product id is refused", func(t *testing.T) {
		e := newEnv(t, Config{})
		ctx := WithConversationID(context.Background(), "conv-1")

		out := run(t, e.registry, ctx, ToolPlaceOrder, `{"product_id":"MADE_UP_9","product_name":"x","quantity":1,"unit_price":1}`)
		assert.True(t, strings.HasPrefix(out, "ORDER NOT PLACED"), out)
		assert.Zero(t, e.catalog.orderCalls)
	})

	t.Run("invalid quantity", func(t *testing.T) {
		e := newEnv(t, Config{})
		out := run(t, e.registry, context.Background(), ToolPlaceOrder, `{"product_id":"COKE_001","quantity":0,"unit_price":1}`)
		assert.Contains(t, out, "quantity must be positive")
		assert.Zero(t, e.catalog.orderCalls)
	})

	t.Run("upstream failure is reported once", func(t *testing.T) {
		e := newEnv(t, Config{})
		e.catalog.orderErr = errx.Upstream(200, "Error: Insufficient stock. Only 3 available.")
		ctx := WithConversationID(context.Background(), "conv-1")
		require.NoError(t, e.ledger.Record(ctx, "conv-1", "COKE_001"))

		out := run(t, e.registry, ctx, ToolPlaceOrder, `{"product_id":"COKE_001","product_name":"Coca-Cola","quantity":30,"unit_price":1.5}`)
		assert.True(t, strings.HasPrefix(out, "ORDER FAILED"), out)
		assert.Contains(t, out, "Insufficient stock")
		assert.Equal(t, 1, e.catalog.orderCalls)
	})
}

func TestPlaceOrder_UnreachableCatalog(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client, err := catalog.NewClient(catalog.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	r, err := NewRegistry(Deps{Retriever: failingRetriever{}, Catalog: client})
	require.NoError(t, err)

	out := run(t, r, context.Background(), ToolPlaceOrder, `{"product_id":"COKE_001","product_name":"Coca-Cola","quantity":2,"unit_price":1.5}`)
	assert.True(t, strings.HasPrefix(out, "ORDER FAILED"), out)
	assert.Contains(t, out, "unreachable")
}

func TestSanitizeArguments(t *testing.T) {
	assert.JSONEq(t, `{"item_name":"coke"}`, SanitizeArguments("check_inventory", `{"item_name":"  coke ","extra":1}`))
	assert.JSONEq(t, `{"price":1250.5,"quantity":20}`, SanitizeArguments("calculate_discount", `{"price":"$1,250.50","quantity":"20"}`))
	assert.JSONEq(t, `{"product_id":"42","quantity":3,"unit_price":2}`, SanitizeArguments("place_order", `{"product_id":42,"quantity":3.0,"unit_price":2}`))
	assert.JSONEq(t, `{"quantity":2.5}`, SanitizeArguments("calculate_discount", `{"quantity":2.5}`))
	assert.Equal(t, "{}", SanitizeArguments("check_inventory", `not json`))
}

// sliceRetriever returns fixed documents in order.
type sliceRetriever []*schema.Document

func (s sliceRetriever) Retrieve(context.Context, string, ...retriever.Option) ([]*schema.Document, error) {
	return s, nil
}

func productDoc(p catalog.Product) *schema.Document {
	d := pipeline.ProductDocument(p)
	d.ID += "#0"
	return d
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logx.Init(logx.LoggerOpts{Environment: core.Development, Output: &buf})
	t.Cleanup(func() { logx.Init() })
	return &buf
}

func TestRecommendCrossSell_KeepsRelatedVariants(t *testing.T) {
	docs := sliceRetriever{
		productDoc(catalog.Product{ID: "CHIPS_001", Name: "Potato Chips Salted", Price: 2.25, Stock: 10}),
		productDoc(catalog.Product{ID: "CHIPS_002", Name: "Potato Chips Paprika", Price: 2.4, Stock: 30}),
		productDoc(catalog.Product{ID: "SALSA_001", Name: "Tomato Salsa Dip", Price: 3.1, Stock: 35}),
	}
	r, err := NewRegistry(Deps{Retriever: docs, Catalog: &fakeCatalog{}})
	require.NoError(t, err)

	var out CrossSellOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, r, context.Background(), ToolRecommendCrossSell, `{"product_name":"chips"}`)), &out))

	var ids []string
	for _, rec := range out.Recommendations {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"CHIPS_002", "SALSA_001"}, ids, "only the top partial match is treated as the queried item")

	require.NoError(t, json.Unmarshal([]byte(run(t, r, context.Background(), ToolRecommendCrossSell, `{"product_name":"Potato Chips Paprika"}`)), &out))
	ids = ids[:0]
	for _, rec := range out.Recommendations {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"CHIPS_001", "SALSA_001"}, ids, "exact name matches are excluded wherever they rank")
}

func TestTools_NoResults(t *testing.T) {
	logs := captureLogs(t)
	r, err := NewRegistry(Deps{Retriever: sliceRetriever{}, Catalog: &fakeCatalog{}})
	require.NoError(t, err)
	ctx := context.Background()

	var inv InventoryOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, r, ctx, ToolCheckInventory, `{"item_name":"caviar"}`)), &inv))
	assert.Empty(t, inv.Matches)
	assert.Contains(t, inv.Message, `No products matched "caviar"`)

	var cs CrossSellOutput
	require.NoError(t, json.Unmarshal([]byte(run(t, r, ctx, ToolRecommendCrossSell, `{"product_name":"caviar"}`)), &cs))
	assert.Empty(t, cs.Recommendations)
	assert.Equal(t, "No related products found.", cs.Message)

	assert.Equal(t, 2, strings.Count(logs.String(), errx.ErrNoResults.Error()))
}
