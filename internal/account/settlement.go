package account

import (
	"fmt"
	"log/slog"

	"github.com/thy3368/rustlob-sub005/internal/domain"
)

// SettleTrade moves the funds of one trade in a single all-or-nothing batch:
//
//	debit-frozen taker's reserved asset, credit taker's received asset,
//	debit-frozen maker's reserved asset, credit maker's received asset.
//
// A buy leg moves price*quantity of the quote asset, a sell leg moves the
// base quantity itself. A failed debit-frozen here means a trade exists whose
// reservation is gone; that is an invariant violation, not a user error, so
// it is logged at error level before being returned.
func (s *Service) SettleTrade(t *domain.Trade, pair domain.TradingPair) error {
	notional := t.Notional()
	if notional.GreaterThan(domain.MaxAmount) {
		return domain.ErrOverflow
	}

	var ops []Op
	if t.TakerSide == domain.Buy {
		ops = []Op{
			{Kind: OpDebitFrozen, AccountID: t.TakerID, Asset: pair.QuoteAsset, Amount: notional},
			{Kind: OpCredit, AccountID: t.TakerID, Asset: pair.BaseAsset, Amount: t.Quantity},
			{Kind: OpDebitFrozen, AccountID: t.MakerID, Asset: pair.BaseAsset, Amount: t.Quantity},
			{Kind: OpCredit, AccountID: t.MakerID, Asset: pair.QuoteAsset, Amount: notional},
		}
	} else {
		ops = []Op{
			{Kind: OpDebitFrozen, AccountID: t.TakerID, Asset: pair.BaseAsset, Amount: t.Quantity},
			{Kind: OpCredit, AccountID: t.TakerID, Asset: pair.QuoteAsset, Amount: notional},
			{Kind: OpDebitFrozen, AccountID: t.MakerID, Asset: pair.QuoteAsset, Amount: notional},
			{Kind: OpCredit, AccountID: t.MakerID, Asset: pair.BaseAsset, Amount: t.Quantity},
		}
	}

	if err := s.executeBatch(ops, true); err != nil {
		slog.Error("trade settlement failed, freeze/match pairing broken",
			"trade_id", t.ID,
			"symbol", t.Symbol,
			"taker", t.TakerID,
			"maker", t.MakerID,
			"err", err,
		)
		return fmt.Errorf("settle trade %d: %w", t.ID, err)
	}
	return nil
}
