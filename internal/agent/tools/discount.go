package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

func (r *Registry) newDiscountTool() tool.InvokableTool {
	return newTextTool(
		&schema.ToolInfo{
			Name: string(ToolCalculateDiscount),
			Desc: "Calculate the total for a quantity of a product. Orders of 20 units or more get 5% off. " +
				"Returns the standard total, the discounted total and the savings.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"price": {
					Type:     schema.Number,
					Desc:     "Unit price as returned by check_inventory.",
					Required: true,
				},
				"quantity": {
					Type:     schema.Integer,
					Desc:     "Number of units.",
					Required: true,
				},
			}),
		},
		func(_ context.Context, in *DiscountInput) string {
			if err := in.Validate(); err != nil {
				return "Cannot calculate discount: " + err.Error()
			}
			return QuoteOrder(in.Price, in.Quantity).Breakdown()
		},
	)
}
