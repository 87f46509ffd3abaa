package tools

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	errx "github.com/salescode-agent/server/internal/core/error"
	"github.com/salescode-agent/server/internal/knowledge/pipeline"
	logx "github.com/salescode-agent/server/pkg/logger"
)

const crossSellTopK = 5

type Recommendation struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Price   float64 `json:"price"`
	Stock   int     `json:"stock"`
	Details string  `json:"details"`
}

type CrossSellOutput struct {
	Recommendations []Recommendation `json:"recommendations"`
	Message         string           `json:"message,omitempty"`
}

func (r *Registry) newCrossSellTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: string(ToolRecommendCrossSell),
			Desc: "Suggest related products to offer alongside a product the customer is buying. " +
				"The product itself is never recommended.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"product_name": {
					Type:     schema.String,
					Desc:     "Name of the product being bought.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *CrossSellInput) (*CrossSellOutput, error) {
			return r.recommendCrossSell(ctx, in), nil
		},
	)
}

func (r *Registry) recommendCrossSell(ctx context.Context, in *CrossSellInput) *CrossSellOutput {
	out := &CrossSellOutput{Recommendations: []Recommendation{}}
	if err := in.Validate(); err != nil {
		out.Message = "Invalid request: " + err.Error()
		return out
	}

	docs, err := r.retriever.Retrieve(ctx, in.ProductName,
		retriever.WithTopK(crossSellTopK),
		retriever.WithDSLInfo(map[string]any{pipeline.MetaKind: pipeline.KindProduct}),
	)
	if err != nil {
		logx.Error().Err(err).Str("tool", string(ToolRecommendCrossSell)).Msg("cross-sell search failed")
		out.Message = "Recommendations are unavailable right now."
		return out
	}

	query := strings.ToLower(strings.TrimSpace(in.ProductName))
	seen := map[string]bool{}
	for i, d := range docs {
		id := metaString(d.MetaData, pipeline.MetaProductID)
		name := metaString(d.MetaData, pipeline.MetaName)
		if id == "" || seen[id] || isQueriedItem(query, id, name, i == 0) {
			continue
		}
		seen[id] = true
		out.Recommendations = append(out.Recommendations, Recommendation{
			ID:      id,
			Name:    name,
			Price:   metaFloat(d.MetaData, pipeline.MetaPrice),
			Stock:   int(metaFloat(d.MetaData, pipeline.MetaStock)),
			Details: d.Content,
		})
	}
	if len(out.Recommendations) == 0 {
		logx.Debug().Err(errx.ErrNoResults).Str("tool", string(ToolRecommendCrossSell)).
			Str("product", in.ProductName).Msg("no cross-sell candidates")
		out.Message = "No related products found."
	}
	return out
}

// isQueriedItem matches the product being bought by id or exact name. A partial
// name match only counts for the top hit, so a short query such as "chips" does
// not exclude every other product of that kind.
func isQueriedItem(query, id, name string, top bool) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if strings.EqualFold(id, query) || n == query {
		return true
	}
	return top && query != "" && strings.Contains(n, query)
}
