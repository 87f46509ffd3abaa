package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/salescode-agent/server/internal/catalog"
	errx "github.com/salescode-agent/server/internal/core/error"
	"github.com/salescode-agent/server/internal/knowledge/pipeline"
	logx "github.com/salescode-agent/server/pkg/logger"
)

const inventoryTopK = 3

type InventoryMatch struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Stock      int     `json:"stock"`
	LowStock   bool    `json:"low_stock"`
	OutOfStock bool    `json:"out_of_stock,omitempty"`
}

type InventoryOutput struct {
	Matches []InventoryMatch `json:"matches"`
	Message string           `json:"message,omitempty"`
}

func (r *Registry) newInventoryTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: string(ToolCheckInventory),
			Desc: "Look up products in the inventory by name. Returns up to 3 matches with product ID, name, unit price, " +
				"current stock and a low_stock flag. Always call this before quoting or ordering; only use product IDs it returns.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"item_name": {
					Type:     schema.String,
					Desc:     "Product name or description, e.g. \"Coca-Cola 500ml\" or \"potato chips\".",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *InventoryInput) (*InventoryOutput, error) {
			return r.checkInventory(ctx, in), nil
		},
	)
}

func (r *Registry) checkInventory(ctx context.Context, in *InventoryInput) *InventoryOutput {
	if err := in.Validate(); err != nil {
		return &InventoryOutput{Matches: []InventoryMatch{}, Message: "Invalid request: " + err.Error()}
	}

	docs, err := r.retriever.Retrieve(ctx, in.ItemName,
		retriever.WithTopK(inventoryTopK),
		retriever.WithDSLInfo(map[string]any{pipeline.MetaKind: pipeline.KindProduct}),
	)
	if err != nil {
		logx.Error().Err(err).Str("tool", string(ToolCheckInventory)).Str("item", in.ItemName).Msg("inventory search failed")
		return &InventoryOutput{Matches: []InventoryMatch{}, Message: "Inventory search is unavailable right now: " + err.Error()}
	}

	matches := make([]InventoryMatch, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		id := metaString(d.MetaData, pipeline.MetaProductID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		matches = append(matches, InventoryMatch{
			ID:    id,
			Name:  metaString(d.MetaData, pipeline.MetaName),
			Price: metaFloat(d.MetaData, pipeline.MetaPrice),
			Stock: int(metaFloat(d.MetaData, pipeline.MetaStock)),
		})
	}

	out := &InventoryOutput{Matches: matches}
	if len(matches) == 0 {
		logx.Debug().Err(errx.ErrNoResults).Str("tool", string(ToolCheckInventory)).Str("item", in.ItemName).Msg("no inventory matches")
		out.Message = fmt.Sprintf("No products matched %q.", in.ItemName)
		return out
	}

	if r.cfg.LiveRefresh && r.catalog != nil {
		if err := r.refresh(ctx, matches); err != nil {
			logx.Warn().Err(err).Str("tool", string(ToolCheckInventory)).Msg("live refresh failed, using indexed values")
			out.Message = "Live stock could not be confirmed; price and stock are from the last index run."
		}
	}

	ids := make([]string, len(matches))
	for i := range matches {
		m := &matches[i]
		m.LowStock = m.Stock < r.cfg.LowStockThreshold
		m.OutOfStock = m.Stock <= 0
		ids[i] = m.ID
	}

	if r.ledger != nil {
		if convID := ConversationID(ctx); convID != "" {
			if err := r.ledger.Record(ctx, convID, ids...); err != nil {
				logx.Warn().Err(err).Str("conversation_id", convID).Msg("failed to record inventory matches")
			}
		}
	}

	logx.Debug().Str("tool", string(ToolCheckInventory)).Str("item", in.ItemName).Strs("ids", ids).Msg("inventory matches")
	return out
}

// refresh overwrites indexed price and stock with the catalog's current values.
func (r *Registry) refresh(ctx context.Context, matches []InventoryMatch) error {
	for i := range matches {
		m := &matches[i]
		products, err := r.catalog.SearchProducts(ctx, m.Name)
		if err != nil {
			return err
		}
		if p, ok := findProduct(products, m.ID); ok {
			m.Price = p.Price
			m.Stock = p.Stock
			if p.Name != "" {
				m.Name = p.Name
			}
		}
	}
	return nil
}

func findProduct(products []catalog.Product, id string) (catalog.Product, bool) {
	for _, p := range products {
		if strings.EqualFold(p.ID, id) {
			return p, true
		}
	}
	return catalog.Product{}, false
}
