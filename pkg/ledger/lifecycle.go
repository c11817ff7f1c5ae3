package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Cancel deactivates an order on behalf of its owner. Deactivation is
// one-way; there is no compensating action.
func (l *Ledger) Cancel(ctx context.Context, id uint64, requester common.Address) error {
	o, mu, err := l.slot(id)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if o.Trader != requester {
		return fmt.Errorf("%w: order %d belongs to %s", ErrNotOwner, id, o.Trader.Hex())
	}
	if !o.Active {
		return fmt.Errorf("%w: order %d", ErrAlreadyInactive, id)
	}
	return l.deactivate(o, "cancelled")
}

// Expire deactivates a past-expiration order. Callable by anyone; matching
// also checks expiration lazily, so this exists for ledger hygiene rather
// than correctness.
func (l *Ledger) Expire(ctx context.Context, id uint64) error {
	o, mu, err := l.slot(id)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if !o.Active {
		return fmt.Errorf("%w: order %d", ErrAlreadyInactive, id)
	}
	if !o.Expired(l.now()) {
		return fmt.Errorf("%w: order %d expires at %s", ErrNotExpired, id, o.Expiration)
	}
	return l.deactivate(o, "expired")
}

// SweepExpired walks the ledger and expires everything past due. Returns the
// number of orders deactivated.
func (l *Ledger) SweepExpired(ctx context.Context) int {
	var n int
	for _, id := range l.idsAscending() {
		o, mu, err := l.slot(id)
		if err != nil {
			continue
		}
		mu.Lock()
		if o.Active && o.Expired(l.now()) {
			if err := l.deactivate(o, "expired"); err == nil {
				n++
			}
		}
		mu.Unlock()
	}
	return n
}

// deactivate flips Active off and persists. Caller holds the order lock.
func (l *Ledger) deactivate(o *Order, reason string) error {
	o.Active = false
	if l.store != nil {
		if err := l.store.PutOrder(o.clone()); err != nil {
			o.Active = true
			return fmt.Errorf("persist deactivation: %w", err)
		}
	}
	l.log.Infow("order_deactivated", "id", o.ID, "reason", reason)
	return nil
}
