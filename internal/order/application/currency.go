package application

import "math"

// CurrencyConverter maps store amounts to the gateway's settlement
// currency. Rate is gateway minor units per store minor unit; same
// currency passes through untouched. The rate is configuration, not a
// live feed, and is applied with half-up rounding.
type CurrencyConverter struct {
	GatewayCurrency string
	Rate            float64
}

func (c CurrencyConverter) ToGatewayMinor(amountCents int64, currency string) int64 {
	if currency == c.GatewayCurrency || c.Rate == 0 {
		return amountCents
	}
	return int64(math.Round(float64(amountCents) * c.Rate))
}
