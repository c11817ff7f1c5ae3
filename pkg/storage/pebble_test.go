package storage

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
	"github.com/alexalidoperic/fheOtcDesk/pkg/util"
)

var testTrader = common.HexToAddress("0xa11ce00000000000000000000000000000000001")

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleOrder(id uint64) *ledger.Order {
	return &ledger.Order{
		ID:         id,
		Trader:     testTrader,
		Side:       ledger.Buy,
		Amount:     fhe.Ciphertext{Handle: bytes.Repeat([]byte{0x01}, 32), Tag: bytes.Repeat([]byte{0x02}, 32)},
		Price:      fhe.Ciphertext{Handle: bytes.Repeat([]byte{0x03}, 32), Tag: bytes.Repeat([]byte{0x04}, 32)},
		Instrument: "WETH-USDC",
		Expiration: time.Unix(1700003600, 0).UTC(),
		Active:     true,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestPutOrderRoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := sampleOrder(7)
	want.VerifiedAmount = big.NewInt(10)
	if err := s.PutOrder(want); err != nil {
		t.Fatalf("PutOrder: %v", err)
	}

	// overwrite with an updated state, last write wins
	want.Active = false
	if err := s.PutOrder(want); err != nil {
		t.Fatalf("PutOrder: %v", err)
	}

	got, err := s.LoadOrders()
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("LoadOrders: %d orders, want 1", len(got))
	}
	o := got[0]
	if o.ID != 7 || o.Trader != testTrader || o.Active || o.Instrument != "WETH-USDC" {
		t.Errorf("loaded order mismatch: %+v", o)
	}
	if !o.Amount.Equal(want.Amount) || !o.Price.Equal(want.Price) {
		t.Error("ciphertext handles did not survive the round trip")
	}
	if o.VerifiedAmount == nil || o.VerifiedAmount.Int64() != 10 {
		t.Errorf("verified amount = %v, want 10", o.VerifiedAmount)
	}
	if !o.Expiration.Equal(want.Expiration) {
		t.Errorf("expiration = %s, want %s", o.Expiration, want.Expiration)
	}
}

func TestLoadOrdersAscending(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []uint64{300, 2, 45, 1} {
		if err := s.PutOrder(sampleOrder(id)); err != nil {
			t.Fatalf("PutOrder(%d): %v", id, err)
		}
	}
	got, err := s.LoadOrders()
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	want := []uint64{1, 2, 45, 300}
	if len(got) != len(want) {
		t.Fatalf("LoadOrders: %d orders, want %d", len(got), len(want))
	}
	for i, o := range got {
		if o.ID != want[i] {
			t.Errorf("order %d has id %d, want %d", i, o.ID, want[i])
		}
	}
}

func TestApplyMatch(t *testing.T) {
	s := newTestStore(t)

	buy := sampleOrder(1)
	sell := sampleOrder(2)
	sell.Side = ledger.Sell
	sell.Active = false
	m := &ledger.TradeMatch{
		ID:          1,
		BuyOrderID:  1,
		SellOrderID: 2,
		Instrument:  "WETH-USDC",
		Amount:      fhe.Ciphertext{Handle: bytes.Repeat([]byte{0x05}, 32), Tag: bytes.Repeat([]byte{0x06}, 32)},
		Price:       buy.Price,
		Timestamp:   time.Unix(1700000100, 0).UTC(),
	}
	if err := s.ApplyMatch(buy, sell, m); err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	orders, err := s.LoadOrders()
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("LoadOrders: %d orders, want 2", len(orders))
	}
	if orders[1].Active {
		t.Error("filled sell persisted as active")
	}

	trades, err := s.LoadTrades()
	if err != nil {
		t.Fatalf("LoadTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("LoadTrades: %d trades, want 1", len(trades))
	}
	if trades[0].BuyOrderID != 1 || trades[0].SellOrderID != 2 || !trades[0].Amount.Equal(m.Amount) {
		t.Errorf("loaded trade mismatch: %+v", trades[0])
	}
}

// The full persistence cycle: place and match through a store-backed ledger,
// reopen, and check the reloaded ledger carries on with fresh ids.
func TestLedgerReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	vault, err := fhe.NewClearVault(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("NewClearVault: %v", err)
	}
	clock := util.NewFakeClock(time.Unix(1700000000, 0).UTC())
	reg := ledger.NewInstrumentRegistry("WETH-USDC")

	place := func(l *ledger.Ledger, side ledger.Side, amount int64) uint64 {
		amountCt, amountProof, err := vault.Encrypt(ctx, big.NewInt(amount), testTrader)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		priceCt, priceProof, err := vault.Encrypt(ctx, big.NewInt(100), testTrader)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		id, err := l.Place(ctx, testTrader, side, amountCt, priceCt, amountProof, priceProof, "WETH-USDC", clock.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Place: %v", err)
		}
		return id
	}

	store, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	l := ledger.New(vault, reg, store, clock, nil)
	buyID := place(l, ledger.Buy, 10)
	sellID := place(l, ledger.Sell, 6)
	if _, err := l.Match(ctx, buyID, sellID); err != nil {
		t.Fatalf("Match: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, err = NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	l = ledger.New(vault, reg, store, clock, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	buy, err := l.Get(buyID)
	if err != nil {
		t.Fatalf("Get(buy): %v", err)
	}
	if !buy.Active {
		t.Error("partially filled buy reloaded inactive")
	}
	sell, err := l.Get(sellID)
	if err != nil {
		t.Fatalf("Get(sell): %v", err)
	}
	if sell.Active {
		t.Error("filled sell reloaded active")
	}
	clears, _, err := vault.Decrypt(ctx, []fhe.Ciphertext{buy.Amount})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if clears[0].Int64() != 4 {
		t.Errorf("reloaded buy remainder = %s, want 4", clears[0])
	}

	// the sequencer must be reseeded past the persisted ids
	newID := place(l, ledger.Buy, 1)
	if newID <= sellID {
		t.Errorf("post-reload id %d not beyond persisted ids", newID)
	}
}
