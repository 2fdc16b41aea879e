package llmagent

// modelPricing holds per-million-token USD prices for input and output
// tokens. Unknown models fall back to conservativeUpperBound.
var modelPricing = map[string]struct{ InputPerM, OutputPerM float64 }{
	"gpt-4o":        {InputPerM: 2.50, OutputPerM: 10.00},
	"gpt-4o-mini":   {InputPerM: 0.15, OutputPerM: 0.60},
	"gpt-4-turbo":   {InputPerM: 10.00, OutputPerM: 30.00},
	"gpt-3.5-turbo": {InputPerM: 0.50, OutputPerM: 1.50},
}

// conservativeUpperBound prices an unrecognized model above every model in
// the table (input and output alike), so cost accounting never silently
// under-reports spend on a model the table hasn't been updated for yet.
var conservativeUpperBound = struct{ InputPerM, OutputPerM float64 }{InputPerM: 15.00, OutputPerM: 75.00}

// estimateCostUSD computes the dollar cost of one call given token counts.
func estimateCostUSD(model string, inputTokens, outputTokens int) float64 {
	price, ok := modelPricing[model]
	if !ok {
		price = conservativeUpperBound
	}
	return float64(inputTokens)/1_000_000*price.InputPerM + float64(outputTokens)/1_000_000*price.OutputPerM
}
