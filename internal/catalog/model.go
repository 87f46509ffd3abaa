package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Product is a catalog product record. The catalog service owns it; this side only reads it.
type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Stock        int     `json:"stock"`
	Brand        string  `json:"brand,omitempty"`
	Category     string  `json:"category,omitempty"`
	ProfitMargin float64 `json:"profit_margin,omitempty"`
	ExpiryDate   Date    `json:"expiry_date,omitempty"`
}

// Order is a historical order record, used only as retrieval corpus.
type Order struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Date      Date   `json:"date"`
	Status    string `json:"status,omitempty"`
}

// UnmarshalJSON accepts both "date" and "order_date" for the order date.
func (o *Order) UnmarshalJSON(b []byte) error {
	type alias Order
	var raw struct {
		alias
		OrderDate Date `json:"order_date"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*o = Order(raw.alias)
	if o.Date == "" {
		o.Date = raw.OrderDate
	}
	return nil
}

// OrderRequest is the transient payload submitted to the order endpoint.
type OrderRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Validate checks the request before it leaves the process.
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.ProductID) == "" {
		return errors.New("product_id is required")
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", r.Quantity)
	}
	return nil
}

// OrderConfirmation is what the catalog acknowledged. OrderID is empty when the
// service replied with plain text instead of JSON.
type OrderConfirmation struct {
	OrderID string `json:"order_id"`
	Date    Date   `json:"date,omitempty"`
	Message string `json:"message,omitempty"`
}

// Date is a calendar date rendered as YYYY-MM-DD. The catalog may send ISO
// strings or epoch milliseconds.
type Date string

const dateLayout = "2006-01-02"

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*d = ""
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		if len(str) >= len(dateLayout) {
			if _, err := time.Parse(dateLayout, str[:len(dateLayout)]); err == nil {
				str = str[:len(dateLayout)]
			}
		}
		*d = Date(str)
		return nil
	}
	var millis int64
	if err := json.Unmarshal(b, &millis); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	*d = Date(time.UnixMilli(millis).UTC().Format(dateLayout))
	return nil
}
