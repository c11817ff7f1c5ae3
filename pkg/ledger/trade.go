package ledger

import (
	"context"
	"time"

	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
)

// TradeMatch is the fact emitted by one successful matching call. It carries
// ciphertext handles only; cleared amounts become public exclusively through
// the reveal protocol. Emitted once, never mutated.
type TradeMatch struct {
	ID          uint64         `json:"id"`
	BuyOrderID  uint64         `json:"buyOrderId"`
	SellOrderID uint64         `json:"sellOrderId"`
	Instrument  string         `json:"instrument"`
	Amount      fhe.Ciphertext `json:"amount"`
	Price       fhe.Ciphertext `json:"price"`
	Timestamp   time.Time      `json:"timestamp"`
}

// MatchEmitter receives match facts after they are durably applied. Emission
// failures are logged, not rolled back; the ledger is the source of truth.
type MatchEmitter interface {
	EmitMatch(ctx context.Context, m *TradeMatch) error
}

// Store is the durability boundary the ledger writes through. ApplyMatch must
// persist both orders and the trade atomically.
type Store interface {
	PutOrder(o *Order) error
	ApplyMatch(buy, sell *Order, m *TradeMatch) error
	LoadOrders() ([]*Order, error)
	LoadTrades() ([]*TradeMatch, error)
	Close() error
}
