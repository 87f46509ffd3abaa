package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/salescode-agent/server/internal/catalog"
	logx "github.com/salescode-agent/server/pkg/logger"
)

func (r *Registry) newOrderTool() tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name: string(ToolPlaceOrder),
			Desc: "Place an order once the customer has confirmed product and quantity. The product ID must come " +
				"from check_inventory in this conversation. The bulk discount is applied automatically. " +
				"Orders are submitted once and never retried; report failures to the customer as they are.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_id": {
					Type:     schema.String,
					Desc:     "Product ID returned by check_inventory.",
					Required: true,
				},
				"product_name": {
					Type:     schema.String,
					Desc:     "Product name, for the receipt.",
					Required: true,
				},
				"quantity": {
					Type:     schema.Integer,
					Desc:     "Number of units to order.",
					Required: true,
				},
				"unit_price": {
					Type:     schema.Number,
					Desc:     "Unit price returned by check_inventory.",
					Required: true,
				},
			}),
		},
		r.placeOrder,
	)
}

func (r *Registry) placeOrder(ctx context.Context, in *OrderInput) string {
	if err := in.Validate(); err != nil {
		return "ORDER NOT PLACED\nReason: " + err.Error()
	}

	convID := ConversationID(ctx)
	log := logx.With().Str("tool", string(ToolPlaceOrder)).Str("conversation_id", convID).
		Str("product_id", in.ProductID).Int("quantity", in.Quantity).Logger()

	if r.ledger != nil {
		known, err := r.ledger.Contains(ctx, convID, in.ProductID)
		if err != nil {
			log.Error().Err(err).Msg("product ledger unavailable")
			return "ORDER NOT PLACED\nReason: could not verify the product id, please try again."
		}
		if !known {
			log.Warn().Msg("order for product not returned by check_inventory")
			return fmt.Sprintf("ORDER NOT PLACED\nReason: product ID %s was not returned by %s in this conversation. "+
				"Look the product up first and use the ID it returns.", in.ProductID, ToolCheckInventory)
		}
	}

	quote := QuoteOrder(in.UnitPrice, in.Quantity)

	conf, err := r.catalog.PlaceOrder(ctx, catalog.OrderRequest{ProductID: in.ProductID, Quantity: in.Quantity})
	if err != nil {
		log.Error().Err(err).Msg("order failed")
		return fmt.Sprintf("ORDER FAILED\nProduct ID: %s\nQuantity: %d\nReason: %s\nThe order was not retried.",
			in.ProductID, in.Quantity, err.Error())
	}

	orderID := conf.OrderID
	if orderID == "" {
		orderID = "ORD-" + strings.ToUpper(uuid.NewString()[:8])
	}
	date := string(conf.Date)
	if date == "" {
		date = r.now().Format("2006-01-02")
	}

	log.Info().Str("order_id", orderID).Str("total", quote.Total.StringFixed(2)).Str("upstream", conf.Message).Msg("order placed")
	return Receipt(orderID, date, in.ProductName, in.ProductID, in.Quantity, quote.Total.StringFixed(2))
}

// Receipt renders the fixed order confirmation shown to the customer.
func Receipt(orderID, date, productName, productID string, quantity int, total string) string {
	return fmt.Sprintf("ORDER CONFIRMED\nOrder ID: %s\nDate: %s\nProduct: %s\nProduct ID: %s\nQuantity: %d\nTotal: %s",
		orderID, date, productName, productID, quantity, total)
}
