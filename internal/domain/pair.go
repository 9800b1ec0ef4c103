package domain

import "github.com/shopspring/decimal"

// TradingPair maps a symbol to its base and quote assets, e.g.
// BTC-USDT -> (BTC, USDT). A buy reserves quote (price*qty), a sell base (qty).
type TradingPair struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
}

// ReserveFor returns the asset and amount that must be frozen to place an
// order on the pair. Returns ErrOverflow when price*qty exceeds MaxAmount.
func (p TradingPair) ReserveFor(side Side, price, qty decimal.Decimal) (string, decimal.Decimal, error) {
	if side == Buy {
		notional := price.Mul(qty)
		if notional.GreaterThan(MaxAmount) {
			return "", decimal.Zero, ErrOverflow
		}
		return p.QuoteAsset, notional, nil
	}
	return p.BaseAsset, qty, nil
}

// Pairs is the symbol registry handed to the sequencer at construction time.
type Pairs map[string]TradingPair

func NewPairs(pairs ...TradingPair) Pairs {
	m := make(Pairs, len(pairs))
	for _, p := range pairs {
		m[p.Symbol] = p
	}
	return m
}

func (m Pairs) Get(symbol string) (TradingPair, bool) {
	p, ok := m[symbol]
	return p, ok
}
