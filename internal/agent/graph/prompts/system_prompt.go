package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/salescode-agent/server/internal/agent/model"
	"github.com/salescode-agent/server/internal/agent/tools"
)

//go:embed template/system_prompt.txt
var coreSystemPrompt string

// RenderSystem renders the agent system prompt through an eino prompt template so
// prompt callbacks fire.
func RenderSystem(ctx context.Context, config model.PromptConfig, lowStockThreshold int) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	vars := map[string]any{
		"AgentName":         config.AgentName,
		"BusinessName":      config.BusinessName,
		"LowStockThreshold": lowStockThreshold,
		"BulkThreshold":     tools.BulkThreshold,
		"InventoryTool":     tools.ToolCheckInventory,
		"DiscountTool":      tools.ToolCalculateDiscount,
		"CrossSellTool":     tools.ToolRecommendCrossSell,
		"OrderTool":         tools.ToolPlaceOrder,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
