package gateway

// pricePerMillion holds USD prices per million tokens, input and output.
type pricePerMillion struct {
	in  float64
	out float64
}

// prices covers the models the harness is normally run with. Unknown models
// cost zero; the estimate is best-effort, not billing-grade.
var prices = map[string]pricePerMillion{
	"gpt-4o":                 {in: 2.50, out: 10.00},
	"gpt-4o-mini":            {in: 0.15, out: 0.60},
	"gpt-3.5-turbo":          {in: 0.50, out: 1.50},
	"text-embedding-ada-002": {in: 0.10},
	"text-embedding-3-small": {in: 0.02},
}

func estimateCost(model string, u usage) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	return float64(u.PromptTokens)*p.in/1e6 + float64(u.CompletionTokens)*p.out/1e6
}
