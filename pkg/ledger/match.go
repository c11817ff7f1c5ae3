package ledger

import (
	"context"
	"fmt"
)

// Match runs one matching call between a buy and a sell order. All arithmetic
// happens on ciphertext handles: exact-price equality via homomorphic
// subtract plus zero-test, trade size via homomorphic min. The amount updates
// and deactivations are applied as a unit; any failure before the apply point
// leaves both orders untouched.
func (l *Ledger) Match(ctx context.Context, buyID, sellID uint64) (*TradeMatch, error) {
	if buyID == sellID {
		return nil, fmt.Errorf("%w: order %d on both sides", ErrOrderNotEligible, buyID)
	}

	m, err := l.matchLocked(ctx, buyID, sellID)
	if err != nil {
		return nil, err
	}

	// Emission is outside the order locks: emitters may be slow (kafka, ws
	// fan-out) and the ledger state is already durable.
	l.mu.RLock()
	emitters := append([]MatchEmitter(nil), l.emitters...)
	l.mu.RUnlock()
	for _, e := range emitters {
		if err := e.EmitMatch(ctx, m); err != nil {
			l.log.Warnw("match_emit_failed", "trade", m.ID, "err", err)
		}
	}
	return m, nil
}

func (l *Ledger) matchLocked(ctx context.Context, buyID, sellID uint64) (*TradeMatch, error) {
	buy, buyMu, err := l.slot(buyID)
	if err != nil {
		return nil, err
	}
	sell, sellMu, err := l.slot(sellID)
	if err != nil {
		return nil, err
	}

	// Fixed ascending-id lock order keeps concurrent matching deadlock-free.
	first, second := buyMu, sellMu
	if sellID < buyID {
		first, second = sellMu, buyMu
	}
	first.Lock()
	defer first.Unlock()
	second.Lock()
	defer second.Unlock()

	if err := l.checkEligible(buy, sell); err != nil {
		return nil, err
	}

	priceDiff, err := l.arith.Sub(ctx, buy.Price, sell.Price)
	if err != nil {
		return nil, fmt.Errorf("price diff: %w", err)
	}
	samePrice, err := l.arith.IsZero(ctx, priceDiff)
	if err != nil {
		return nil, fmt.Errorf("price zero-test: %w", err)
	}
	if !samePrice {
		return nil, fmt.Errorf("%w: buy %d vs sell %d", ErrPriceMismatch, buyID, sellID)
	}

	tradeAmount, err := l.arith.Min(ctx, buy.Amount, sell.Amount)
	if err != nil {
		return nil, fmt.Errorf("trade amount: %w", err)
	}
	newBuyAmount, err := l.arith.Sub(ctx, buy.Amount, tradeAmount)
	if err != nil {
		return nil, fmt.Errorf("buy remainder: %w", err)
	}
	newSellAmount, err := l.arith.Sub(ctx, sell.Amount, tradeAmount)
	if err != nil {
		return nil, fmt.Errorf("sell remainder: %w", err)
	}
	buyFilled, err := l.arith.IsZero(ctx, newBuyAmount)
	if err != nil {
		return nil, fmt.Errorf("buy zero-test: %w", err)
	}
	sellFilled, err := l.arith.IsZero(ctx, newSellAmount)
	if err != nil {
		return nil, fmt.Errorf("sell zero-test: %w", err)
	}

	m := &TradeMatch{
		ID:          l.tradeSeq.Next(),
		BuyOrderID:  buyID,
		SellOrderID: sellID,
		Instrument:  buy.Instrument,
		Amount:      tradeAmount,
		Price:       buy.Price,
		Timestamp:   l.now(),
	}

	// Apply point. Persist the post-state first so a storage failure cannot
	// leave memory and disk disagreeing, then flip the in-memory records.
	if l.store != nil {
		nb, ns := buy.clone(), sell.clone()
		nb.Amount, ns.Amount = newBuyAmount, newSellAmount
		nb.Active, ns.Active = !buyFilled, !sellFilled
		if err := l.store.ApplyMatch(nb, ns, m); err != nil {
			return nil, fmt.Errorf("persist match: %w", err)
		}
	}
	buy.Amount, sell.Amount = newBuyAmount, newSellAmount
	if buyFilled {
		buy.Active = false
	}
	if sellFilled {
		sell.Active = false
	}

	l.log.Infow("orders_matched",
		"trade", m.ID, "buy", buyID, "sell", sellID, "instrument", m.Instrument,
		"buy_filled", buyFilled, "sell_filled", sellFilled)
	return m, nil
}

// checkEligible enforces the matching preconditions. The violated condition
// is named in the error for operator logs; the API layer collapses all of
// them into one rejection code.
func (l *Ledger) checkEligible(buy, sell *Order) error {
	now := l.now()
	switch {
	case !buy.Active:
		return fmt.Errorf("%w: buy order %d inactive", ErrOrderNotEligible, buy.ID)
	case !sell.Active:
		return fmt.Errorf("%w: sell order %d inactive", ErrOrderNotEligible, sell.ID)
	case buy.Side != Buy:
		return fmt.Errorf("%w: order %d is not a buy", ErrOrderNotEligible, buy.ID)
	case sell.Side != Sell:
		return fmt.Errorf("%w: order %d is not a sell", ErrOrderNotEligible, sell.ID)
	case buy.Instrument != sell.Instrument:
		return fmt.Errorf("%w: instrument mismatch %s vs %s", ErrOrderNotEligible, buy.Instrument, sell.Instrument)
	case buy.Expired(now):
		return fmt.Errorf("%w: buy order %d expired", ErrOrderNotEligible, buy.ID)
	case sell.Expired(now):
		return fmt.Errorf("%w: sell order %d expired", ErrOrderNotEligible, sell.ID)
	}
	return nil
}
