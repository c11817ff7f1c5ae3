package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
	"github.com/alexalidoperic/fheOtcDesk/pkg/util"
)

// Ledger is the durable store of orders and the only component that mutates
// them. The maps are guarded by mu; each order additionally has its own lock
// so mutating operations hold single-writer discipline per order. Matching
// takes two order locks in ascending id order.
type Ledger struct {
	arith fhe.Arithmetic
	reg   *InstrumentRegistry
	store Store
	clock util.Clock
	log   *zap.SugaredLogger

	seq      *Sequencer
	tradeSeq *Sequencer

	mu       sync.RWMutex
	orders   map[uint64]*Order
	locks    map[uint64]*sync.Mutex
	byTrader map[common.Address][]uint64

	emitters []MatchEmitter
}

// New builds a ledger. store and log may be nil: the ledger then runs
// memory-only and silent, which is what the tests use.
func New(arith fhe.Arithmetic, reg *InstrumentRegistry, store Store, clock util.Clock, log *zap.SugaredLogger) *Ledger {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Ledger{
		arith:    arith,
		reg:      reg,
		store:    store,
		clock:    clock,
		log:      log,
		seq:      NewSequencer(0),
		tradeSeq: NewSequencer(0),
		orders:   make(map[uint64]*Order),
		locks:    make(map[uint64]*sync.Mutex),
		byTrader: make(map[common.Address][]uint64),
	}
}

// AddEmitter registers a sink for match facts.
func (l *Ledger) AddEmitter(e MatchEmitter) {
	l.mu.Lock()
	l.emitters = append(l.emitters, e)
	l.mu.Unlock()
}

// Load replays persisted orders after a restart and reseeds both sequencers.
func (l *Ledger) Load() error {
	if l.store == nil {
		return nil
	}
	orders, err := l.store.LoadOrders()
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, o := range orders {
		l.orders[o.ID] = o
		l.locks[o.ID] = &sync.Mutex{}
		l.byTrader[o.Trader] = append(l.byTrader[o.Trader], o.ID)
		l.seq.Reseed(o.ID)
	}
	for _, ids := range l.byTrader {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	trades, err := l.store.LoadTrades()
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	for _, t := range trades {
		l.tradeSeq.Reseed(t.ID)
	}
	l.log.Infow("ledger_loaded", "orders", len(orders), "trades", len(trades))
	return nil
}

// Place validates the encrypted handles through the adapter and stores the
// order active. Amount and price are opaque: a garbage-but-well-formed
// ciphertext is accepted here and only surfaces at match time. That boundary
// is deliberate, the desk cannot inspect what it cannot decrypt.
func (l *Ledger) Place(ctx context.Context, trader common.Address, side Side, amount, price fhe.Ciphertext, amountProof, priceProof []byte, instrument string, expiration time.Time) (uint64, error) {
	if side != Buy && side != Sell {
		return 0, fmt.Errorf("invalid side %q", side)
	}
	if l.reg != nil && !l.reg.Has(instrument) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	if !expiration.After(l.clock.Now()) {
		return 0, fmt.Errorf("%w: %s", ErrExpiredPlacement, expiration)
	}

	amount, err := l.adopt(ctx, amount, amountProof)
	if err != nil {
		return 0, fmt.Errorf("amount: %w", err)
	}
	price, err = l.adopt(ctx, price, priceProof)
	if err != nil {
		return 0, fmt.Errorf("price: %w", err)
	}

	o := &Order{
		ID:         l.seq.Next(),
		Trader:     trader,
		Side:       side,
		Amount:     amount,
		Price:      price,
		Instrument: instrument,
		Expiration: expiration,
		Active:     true,
		CreatedAt:  l.clock.Now(),
	}
	if l.store != nil {
		if err := l.store.PutOrder(o); err != nil {
			return 0, fmt.Errorf("persist order: %w", err)
		}
	}

	l.mu.Lock()
	l.orders[o.ID] = o
	l.locks[o.ID] = &sync.Mutex{}
	l.byTrader[trader] = append(l.byTrader[trader], o.ID)
	l.mu.Unlock()

	l.log.Infow("order_placed",
		"id", o.ID, "trader", trader.Hex(), "side", side,
		"instrument", instrument, "expiration", expiration)
	return o.ID, nil
}

// adopt runs an inbound handle through the adapter's validation.
func (l *Ledger) adopt(ctx context.Context, ct fhe.Ciphertext, proof []byte) (fhe.Ciphertext, error) {
	out, err := l.arith.FromExternalHandle(ctx, ct, proof)
	if err != nil {
		if errors.Is(err, fhe.ErrUnavailable) {
			return fhe.Ciphertext{}, err
		}
		return fhe.Ciphertext{}, fmt.Errorf("%w: %v", ErrInvalidEncryptedInput, err)
	}
	return out, nil
}

// slot resolves an order and its lock without acquiring the lock.
func (l *Ledger) slot(id uint64) (*Order, *sync.Mutex, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	return o, l.locks[id], nil
}

// Get returns a snapshot of the order.
func (l *Ledger) Get(id uint64) (*Order, error) {
	o, mu, err := l.slot(id)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return o.clone(), nil
}

// ListActive snapshots the active orders for an instrument in ascending id
// order. No further ordering is guaranteed; prices are ciphertext, so there
// is no book to sort.
func (l *Ledger) ListActive(instrument string) []*Order {
	ids := l.idsAscending()
	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, mu, err := l.slot(id)
		if err != nil {
			continue
		}
		mu.Lock()
		if o.Active && o.Instrument == instrument {
			out = append(out, o.clone())
		}
		mu.Unlock()
	}
	return out
}

// ListByTrader snapshots a trader's orders in placement order.
func (l *Ledger) ListByTrader(trader common.Address) []*Order {
	l.mu.RLock()
	ids := append([]uint64(nil), l.byTrader[trader]...)
	l.mu.RUnlock()

	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		o, mu, err := l.slot(id)
		if err != nil {
			continue
		}
		mu.Lock()
		out = append(out, o.clone())
		mu.Unlock()
	}
	return out
}

func (l *Ledger) idsAscending() []uint64 {
	l.mu.RLock()
	ids := make([]uint64, 0, len(l.orders))
	for id := range l.orders {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SetVerifiedAmount records the proof-checked cleartext amount exactly once.
// A second call returns the stored value untouched, which makes concurrent
// reveal submissions safe without holding locks across the oracle round-trip.
// forAmount pins the ciphertext the proof was issued for: if the order
// matched in the reveal window, the stale proof is rejected instead of
// binding a wrong cleartext.
func (l *Ledger) SetVerifiedAmount(id uint64, v *big.Int, forAmount fhe.Ciphertext) (*big.Int, error) {
	o, mu, err := l.slot(id)
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	if o.VerifiedAmount != nil {
		return new(big.Int).Set(o.VerifiedAmount), nil
	}
	if !o.Amount.Equal(forAmount) {
		return nil, fmt.Errorf("%w: order %d", ErrStaleCiphertext, id)
	}
	o.VerifiedAmount = new(big.Int).Set(v)
	if l.store != nil {
		if err := l.store.PutOrder(o.clone()); err != nil {
			o.VerifiedAmount = nil
			return nil, fmt.Errorf("persist verified amount: %w", err)
		}
	}
	l.log.Infow("amount_verified", "id", id, "amount", v.String())
	return new(big.Int).Set(v), nil
}

func (l *Ledger) now() time.Time { return l.clock.Now() }
