package grading

import (
	"sort"
	"strings"
)

// Rate is a price in USD per million tokens.
type Rate struct {
	Input  float64 `koanf:"input" json:"input"`
	Output float64 `koanf:"output" json:"output"`
}

// Usage is the token accounting of one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Cost applies the rate to usage.
func (r Rate) Cost(u Usage) float64 {
	return float64(u.InputTokens)/1e6*r.Input + float64(u.OutputTokens)/1e6*r.Output
}

type pricingEntry struct {
	key  string
	rate Rate
}

// Pricing maps model ids to rates. A model matches the longest key it
// contains; models matching nothing pay the fallback rate.
type Pricing struct {
	entries  []pricingEntry
	fallback Rate
}

// DefaultPricing returns the built-in rate table with the pro tier as
// fallback.
func DefaultPricing() *Pricing {
	return NewPricing(map[string]Rate{
		"flash": {Input: 0.075, Output: 0.30},
		"pro":   {Input: 1.25, Output: 5.00},
	}, Rate{Input: 1.25, Output: 5.00})
}

// NewPricing builds a table from rates keyed by model id fragment.
func NewPricing(rates map[string]Rate, fallback Rate) *Pricing {
	p := &Pricing{fallback: fallback}
	for k, v := range rates {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		p.entries = append(p.entries, pricingEntry{key: k, rate: v})
	}
	sort.Slice(p.entries, func(i, j int) bool {
		if len(p.entries[i].key) != len(p.entries[j].key) {
			return len(p.entries[i].key) > len(p.entries[j].key)
		}
		return p.entries[i].key < p.entries[j].key
	})
	return p
}

// Rate returns the rate for model.
func (p *Pricing) Rate(model string) Rate {
	m := strings.ToLower(model)
	for _, e := range p.entries {
		if strings.Contains(m, e.key) {
			return e.rate
		}
	}
	return p.fallback
}

// Cost prices one call of model.
func (p *Pricing) Cost(model string, u Usage) float64 {
	return p.Rate(model).Cost(u)
}
