package app

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
)

// ConversionQuote is the outcome of pricing a cross-currency movement.
type ConversionQuote struct {
	ConvertedAmount decimal.Decimal
	Rate            decimal.Decimal
	Fee             decimal.Decimal
}

// Converter prices a money movement between two currencies. Implementations
// must not touch persistent state; a failed conversion aborts the enclosing
// operation before any balance mutation.
type Converter interface {
	Convert(amount decimal.Decimal, fromCurrency, toCurrency string) (ConversionQuote, error)
}

// RateTableConverter converts via a static rate table plus a flat
// basis-point fee on the converted amount. Rates are keyed "FROM/TO".
type RateTableConverter struct {
	rates  map[string]decimal.Decimal
	feeBps int64
}

// NewRateTableConverter builds a converter from string rates as they appear
// in configuration. Unparseable rates are rejected up front.
func NewRateTableConverter(rates map[string]string, feeBps int64) (*RateTableConverter, error) {
	parsed := make(map[string]decimal.Decimal, len(rates))
	for pair, rate := range rates {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("invalid exchange rate %q for pair %s: %w", rate, pair, err)
		}
		if d.Sign() <= 0 {
			return nil, fmt.Errorf("exchange rate for pair %s must be positive, got %s", pair, rate)
		}
		parsed[pair] = d
	}
	return &RateTableConverter{rates: parsed, feeBps: feeBps}, nil
}

func (c *RateTableConverter) Convert(amount decimal.Decimal, fromCurrency, toCurrency string) (ConversionQuote, error) {
	if fromCurrency == toCurrency {
		return ConversionQuote{
			ConvertedAmount: amount,
			Rate:            decimal.NewFromInt(1),
			Fee:             decimal.Zero,
		}, nil
	}

	rate, ok := c.rates[fromCurrency+"/"+toCurrency]
	if !ok {
		return ConversionQuote{}, fmt.Errorf("%w: no rate for %s/%s", domain.ErrConversionFailed, fromCurrency, toCurrency)
	}

	gross := amount.Mul(rate)
	fee := gross.Mul(decimal.NewFromInt(c.feeBps)).Div(decimal.NewFromInt(10000)).Round(2)
	converted := gross.Sub(fee).Round(2)
	if converted.Sign() <= 0 {
		return ConversionQuote{}, fmt.Errorf("%w: fee exceeds converted amount for %s/%s", domain.ErrConversionFailed, fromCurrency, toCurrency)
	}

	return ConversionQuote{ConvertedAmount: converted, Rate: rate, Fee: fee}, nil
}
