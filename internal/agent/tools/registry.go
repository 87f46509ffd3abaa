package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/salescode-agent/server/internal/agent/model"
	"github.com/salescode-agent/server/internal/catalog"
)

const DefaultLowStockThreshold = 20

type Config struct {
	LiveRefresh       bool `envconfig:"INVENTORY_LIVE_REFRESH" default:"true"`
	LowStockThreshold int  `envconfig:"LOW_STOCK_THRESHOLD" default:"20"`
}

// Catalog is the part of the catalog client the tools use.
type Catalog interface {
	SearchProducts(ctx context.Context, query string) ([]catalog.Product, error)
	PlaceOrder(ctx context.Context, req catalog.OrderRequest) (*catalog.OrderConfirmation, error)
}

type Deps struct {
	Retriever retriever.Retriever
	Catalog   Catalog
	// Ledger is optional; without it place_order does not check product ids.
	Ledger model.ProductLedger
	Config Config
	Now    func() time.Time
}

// Registry builds and holds the closed tool set.
type Registry struct {
	retriever retriever.Retriever
	catalog   Catalog
	ledger    model.ProductLedger
	cfg       Config
	now       func() time.Time

	tools map[ToolName]tool.InvokableTool
}

func NewRegistry(deps Deps) (*Registry, error) {
	if deps.Retriever == nil {
		return nil, errors.New("tools: retriever is nil")
	}
	if deps.Catalog == nil {
		return nil, errors.New("tools: catalog is nil")
	}
	if deps.Config.LowStockThreshold <= 0 {
		deps.Config.LowStockThreshold = DefaultLowStockThreshold
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := &Registry{
		retriever: deps.Retriever,
		catalog:   deps.Catalog,
		ledger:    deps.Ledger,
		cfg:       deps.Config,
		now:       deps.Now,
	}
	r.tools = map[ToolName]tool.InvokableTool{
		ToolCheckInventory:     r.newInventoryTool(),
		ToolCalculateDiscount:  r.newDiscountTool(),
		ToolRecommendCrossSell: r.newCrossSellTool(),
		ToolPlaceOrder:         r.newOrderTool(),
	}
	return r, nil
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []tool.BaseTool {
	out := make([]tool.BaseTool, 0, len(Names))
	for _, n := range Names {
		out = append(out, r.tools[n])
	}
	return out
}

// Get returns a tool by name.
func (r *Registry) Get(name ToolName) (tool.InvokableTool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Infos returns the tool schemas to bind to the chat model.
func (r *Registry) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(Names))
	for _, n := range Names {
		info, err := r.tools[n].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info %s: %w", n, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// textTool is an InvokableTool whose result is free text for the model rather
// than JSON. Argument errors are reported as text as well.
type textTool[T any] struct {
	info *schema.ToolInfo
	run  func(ctx context.Context, in *T) string
}

func newTextTool[T any](info *schema.ToolInfo, run func(ctx context.Context, in *T) string) *textTool[T] {
	return &textTool[T]{info: info, run: run}
}

func (t *textTool[T]) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *textTool[T]) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	in := new(T)
	if err := json.Unmarshal([]byte(argumentsInJSON), in); err != nil {
		return fmt.Sprintf("Invalid arguments for %s: %v", t.info.Name, err), nil
	}
	return t.run(ctx, in), nil
}

func metaString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func metaFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

var _ tool.InvokableTool = (*textTool[DiscountInput])(nil)
