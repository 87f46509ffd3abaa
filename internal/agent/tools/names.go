// Package tools is the closed set of tools the sales agent may call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ToolName string

const (
	ToolCheckInventory     ToolName = "check_inventory"
	ToolCalculateDiscount  ToolName = "calculate_discount"
	ToolRecommendCrossSell ToolName = "recommend_cross_sell"
	ToolPlaceOrder         ToolName = "place_order"
)

// Names lists every tool in registration order.
var Names = []ToolName{
	ToolCheckInventory,
	ToolCalculateDiscount,
	ToolRecommendCrossSell,
	ToolPlaceOrder,
}

// Known reports whether name is one of the registered tools.
func Known(name string) bool {
	for _, n := range Names {
		if string(n) == name {
			return true
		}
	}
	return false
}

type InventoryInput struct {
	ItemName string `json:"item_name"`
}

func (in *InventoryInput) Validate() error {
	in.ItemName = strings.TrimSpace(in.ItemName)
	if in.ItemName == "" {
		return errors.New("item_name is required")
	}
	return nil
}

type DiscountInput struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

func (in *DiscountInput) Validate() error {
	if in.Price < 0 {
		return fmt.Errorf("price must not be negative, got %v", in.Price)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", in.Quantity)
	}
	return nil
}

type CrossSellInput struct {
	ProductName string `json:"product_name"`
}

func (in *CrossSellInput) Validate() error {
	in.ProductName = strings.TrimSpace(in.ProductName)
	if in.ProductName == "" {
		return errors.New("product_name is required")
	}
	return nil
}

type OrderInput struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

func (in *OrderInput) Validate() error {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.ProductName = strings.TrimSpace(in.ProductName)
	if in.ProductID == "" {
		return errors.New("product_id is required")
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", in.Quantity)
	}
	if in.UnitPrice < 0 {
		return fmt.Errorf("unit_price must not be negative, got %v", in.UnitPrice)
	}
	if in.ProductName == "" {
		in.ProductName = in.ProductID
	}
	return nil
}

type conversationKey struct{}

// WithConversationID scopes tool calls made with ctx to a conversation.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

// ConversationID returns the conversation tool calls are made for, or "".
func ConversationID(ctx context.Context) string {
	id, _ := ctx.Value(conversationKey{}).(string)
	return id
}
