package safety

import (
	"sync"

	"github.com/Adam-Behun/optimalbot-portal-sub000/schema"
)

// CostPerThousandTokens maps a service name ("main_llm", "classifier_llm",
// "stt", "tts") to its per-1k-token cost estimate in USD. Left as data
// rather than a lookup table keyed by provider/model, since the orchestrator
// already knows which service issued each usage record.
type CostPerThousandTokens map[string]float64

// UsageSummary is the output of UsageObserver.Summary, ready for session
// persistence (spec.md §4.7: "{usage, costs, total_cost_usd}").
type UsageSummary struct {
	Usage        map[string]schema.Usage `json:"usage"`
	Costs        map[string]float64      `json:"costs"`
	TotalCostUSD float64                 `json:"total_cost_usd"`
}

// UsageObserver accumulates per-service token usage across a call and
// estimates the resulting dollar cost.
type UsageObserver struct {
	costs CostPerThousandTokens

	mu    sync.Mutex
	usage map[string]schema.Usage
}

// NewUsageObserver builds a UsageObserver pricing each service according to
// costs (USD per 1,000 total tokens).
func NewUsageObserver(costs CostPerThousandTokens) *UsageObserver {
	return &UsageObserver{costs: costs, usage: make(map[string]schema.Usage)}
}

// Record adds u's token counts to service's running total.
func (o *UsageObserver) Record(service string, u schema.Usage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	existing := o.usage[service]
	existing.InputTokens += u.InputTokens
	existing.OutputTokens += u.OutputTokens
	existing.TotalTokens += u.TotalTokens
	existing.CachedTokens += u.CachedTokens
	o.usage[service] = existing
}

// Summary computes the {usage, costs, total_cost_usd} breakdown for every
// service that has recorded usage.
func (o *UsageObserver) Summary() UsageSummary {
	o.mu.Lock()
	defer o.mu.Unlock()

	summary := UsageSummary{
		Usage: make(map[string]schema.Usage, len(o.usage)),
		Costs: make(map[string]float64, len(o.usage)),
	}
	for service, u := range o.usage {
		summary.Usage[service] = u
		rate := o.costs[service]
		cost := float64(u.TotalTokens) / 1000 * rate
		summary.Costs[service] = cost
		summary.TotalCostUSD += cost
	}
	return summary
}
