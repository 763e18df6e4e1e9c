package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

const (
	ToolNewsSearch      = "news.search"
	ToolInventoryQuery  = "inventory.query"
	ToolCurrencyConvert = "currency.convert"
)

var toolKinds = map[string]contractx.SourceKind{
	ToolNewsSearch:      contractx.SourceNews,
	ToolInventoryQuery:  contractx.SourceInventory,
	ToolCurrencyConvert: contractx.SourceCurrency,
}

type Executor func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error)

// Build returns the tool descriptions handed to reasoning models together
// with an executor bound to gw.
func Build(gw contractx.ToolGateway) ([]*schema.ToolInfo, Executor) {
	return Infos(), NewExecutor(gw)
}

// KindFor maps a catalog tool name to its source kind.
func KindFor(tool string) (contractx.SourceKind, bool) {
	kind, ok := toolKinds[tool]
	return kind, ok
}

func NewExecutor(gw contractx.ToolGateway) Executor {
	fallback := DefaultExecutor()
	return func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
		kind, ok := KindFor(tool)
		if !ok || gw == nil {
			return fallback(ctx, tool, args)
		}
		digest := gw.Query(ctx, kind, args)
		out := contractx.ToolResult{Tool: tool, Result: digest}
		if !digest.Available {
			out.Error = digest.Content
		}
		return out, nil
	}
}

func DefaultExecutor() Executor {
	return func(ctx context.Context, tool string, _ map[string]any) (contractx.ToolResult, error) {
		return contractx.ToolResult{
			Tool:  tool,
			Error: fmt.Sprintf("tool=%s is unavailable", tool),
		}, nil
	}
}

// Names lists the catalog tool names in a stable order.
func Names() []string {
	return []string{ToolNewsSearch, ToolInventoryQuery, ToolCurrencyConvert}
}

func Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: ToolNewsSearch,
			Desc: "Search recent news headlines for disruptions such as weather, geopolitics or strikes. Results are compacted.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "Search keywords including the region", Required: true},
			}),
		},
		{
			Name: ToolInventoryQuery,
			Desc: "Query part stock levels. Parts at or below their reorder point are reported as LOW_STOCK.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"region":         {Type: schema.String, Desc: "Sourcing region of the parts"},
				"part_id":        {Type: schema.String, Desc: "Exact part identifier"},
				"low_stock_only": {Type: schema.Boolean, Desc: "Only return parts at or below reorder point"},
			}),
		},
		{
			Name: ToolCurrencyConvert,
			Desc: "Convert an amount between currencies using USD exchange rates (EUR, TWD, JPY, VND, GBP).",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"amount": {Type: schema.Number, Desc: "Amount to convert", Required: true},
				"from":   {Type: schema.String, Desc: "3-letter source currency code", Required: true},
				"to":     {Type: schema.String, Desc: "3-letter target currency code, USD when omitted"},
			}),
		},
	}
}
