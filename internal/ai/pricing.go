package ai

// Price is USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// PriceTable is keyed by model id. It is read-only once built.
type PriceTable map[string]Price

func DefaultPrices() PriceTable {
	return PriceTable{
		"gpt-4.1-nano":                {Input: 0.10, Output: 0.40},
		"gpt-4.1-mini":                {Input: 0.40, Output: 1.60},
		"gpt-4.1":                     {Input: 2.00, Output: 8.00},
		"gpt-4o-mini":                 {Input: 0.15, Output: 0.60},
		"gpt-4o":                      {Input: 2.50, Output: 10.00},
		"openai/gpt-4.1-nano":         {Input: 0.10, Output: 0.40},
		"openai/gpt-4.1-mini":         {Input: 0.40, Output: 1.60},
		"openai/gpt-4o-mini":          {Input: 0.15, Output: 0.60},
		"google/gemini-2.0-flash-001": {Input: 0.10, Output: 0.40},
		"gemini-2.0-flash":            {Input: 0.10, Output: 0.40},
		"gemini-2.5-flash":            {Input: 0.30, Output: 2.50},
		"gemini-2.5-flash-lite":       {Input: 0.10, Output: 0.40},
	}
}

// With returns a copy of t with overrides applied.
func (t PriceTable) With(overrides map[string]Price) PriceTable {
	out := make(PriceTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Cost returns nil for models missing from the table.
func (t PriceTable) Cost(model string, u Usage) *float64 {
	p, ok := t[model]
	if !ok {
		return nil
	}
	cost := float64(u.PromptTokens)/1e6*p.Input + float64(u.CompletionTokens)/1e6*p.Output
	return &cost
}
