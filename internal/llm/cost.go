package llm

// costPerToken holds USD prices per 1K tokens as [input, output].
var costPerToken = map[string][2]float64{
	// Gemini
	"gemini-2.5-flash":      {0.0003, 0.0025},
	"gemini-2.5-flash-lite": {0.0001, 0.0004},
	"gemini-2.5-pro":        {0.00125, 0.01},
	"text-embedding-004":    {0, 0},

	// OpenAI
	"gpt-4o":                 {0.0025, 0.01},
	"gpt-4o-mini":            {0.00015, 0.0006},
	"text-embedding-3-small": {0.00002, 0},
	"text-embedding-3-large": {0.00013, 0},

	// Anthropic
	"claude-3-5-haiku-latest":  {0.0008, 0.004},
	"claude-sonnet-4-20250514": {0.003, 0.015},
}

// CalculateCost returns 0 for unknown and local models.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	prices, ok := costPerToken[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000.0*prices[0] + float64(outputTokens)/1000.0*prices[1]
}
