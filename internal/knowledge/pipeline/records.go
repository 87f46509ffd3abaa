package pipeline

import (
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/salescode-agent/server/internal/catalog"
)

// Metadata keys attached to every indexed record.
const (
	MetaKind      = "kind"
	MetaProductID = "product_id"
	MetaName      = "name"
	MetaPrice     = "price"
	MetaStock     = "stock"
	MetaOrderID   = "order_id"
	MetaQuantity  = "quantity"
	MetaDate      = "date"

	KindProduct = "product"
	KindOrder   = "order"
)

// ProductKey is the record key chunk ids of a product derive from.
func ProductKey(id string) string { return "product:" + id }

// OrderKey is the record key chunk ids of an order derive from.
func OrderKey(id string) string { return "order:" + id }

type lines struct{ b strings.Builder }

func (l *lines) add(key, value string) {
	if value == "" {
		return
	}
	if l.b.Len() > 0 {
		l.b.WriteByte('\n')
	}
	l.b.WriteString(key)
	l.b.WriteString(": ")
	l.b.WriteString(value)
}

// ProductDocument serialises a product with a fixed field order.
func ProductDocument(p catalog.Product) *schema.Document {
	var l lines
	l.add("id", p.ID)
	l.add("name", p.Name)
	l.add("price", strconv.FormatFloat(p.Price, 'f', 2, 64))
	l.add("stock", strconv.Itoa(p.Stock))
	l.add("brand", p.Brand)
	l.add("category", p.Category)
	l.add("expiry_date", string(p.ExpiryDate))

	return &schema.Document{
		ID:      ProductKey(p.ID),
		Content: l.b.String(),
		MetaData: map[string]any{
			MetaKind:      KindProduct,
			MetaProductID: p.ID,
			MetaName:      p.Name,
			MetaPrice:     p.Price,
			MetaStock:     p.Stock,
		},
	}
}

// OrderDocument serialises an order with a fixed field order.
func OrderDocument(o catalog.Order) *schema.Document {
	var l lines
	l.add("order_id", o.OrderID)
	l.add("product_id", o.ProductID)
	l.add("quantity", strconv.Itoa(o.Quantity))
	l.add("date", string(o.Date))
	l.add("status", o.Status)

	return &schema.Document{
		ID:      OrderKey(o.OrderID),
		Content: l.b.String(),
		MetaData: map[string]any{
			MetaKind:      KindOrder,
			MetaOrderID:   o.OrderID,
			MetaProductID: o.ProductID,
			MetaQuantity:  o.Quantity,
			MetaDate:      string(o.Date),
		},
	}
}
