package domain

import (
	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when a model schema declares no currency.
const DefaultCurrency = "USD"

// Usage is the per-call accounting record. Monetary fields are decimals
// so price arithmetic stays exact regardless of unit size.
type Usage struct {
	InputTokens     int             `json:"input_tokens"`
	OutputTokens    int             `json:"output_tokens"`
	TotalTokens     int             `json:"total_tokens"`
	InputUnitPrice  decimal.Decimal `json:"input_unit_price"`
	InputPriceUnit  decimal.Decimal `json:"input_price_unit"`
	OutputUnitPrice decimal.Decimal `json:"output_unit_price"`
	OutputPriceUnit decimal.Decimal `json:"output_price_unit"`
	InputPrice      decimal.Decimal `json:"input_price"`
	OutputPrice     decimal.Decimal `json:"output_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency"`
	Latency         float64         `json:"latency"`
}

// NewUsage prices a finished call against the model schema. Unit prices
// are read from schema properties and applied per price unit (tokens per
// priced block, usually 1000).
func NewUsage(schema *ModelSchema, inputTokens, outputTokens int, latencySeconds float64) Usage {
	unit := decimal.NewFromInt(1000)
	if schema != nil {
		if n := schema.NumericProperty(PropPriceUnit); n > 0 {
			unit = decimal.NewFromFloat(n)
		}
	}
	inputUnit := decimal.NewFromFloat(schema.NumericProperty(PropInputUnitPrice))
	outputUnit := decimal.NewFromFloat(schema.NumericProperty(PropOutputUnitPrice))

	currency := schema.StringProperty(PropCurrency)
	if currency == "" {
		currency = DefaultCurrency
	}

	inputPrice := inputUnit.Mul(decimal.NewFromInt(int64(inputTokens))).Div(unit).Round(7)
	outputPrice := outputUnit.Mul(decimal.NewFromInt(int64(outputTokens))).Div(unit).Round(7)

	return Usage{
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		TotalTokens:     inputTokens + outputTokens,
		InputUnitPrice:  inputUnit,
		InputPriceUnit:  unit,
		OutputUnitPrice: outputUnit,
		OutputPriceUnit: unit,
		InputPrice:      inputPrice,
		OutputPrice:     outputPrice,
		TotalPrice:      inputPrice.Add(outputPrice),
		Currency:        currency,
		Latency:         latencySeconds,
	}
}
