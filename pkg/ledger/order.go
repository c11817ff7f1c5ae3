// Package ledger owns the encrypted order book: order records, the matching
// engine operating on ciphertext handles, and the lifecycle transitions.
// Orders are settlement history and are never deleted.
package ledger

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrInvalidEncryptedInput = errors.New("invalid encrypted input")
	ErrUnknownInstrument     = errors.New("unknown instrument")
	ErrOrderNotEligible      = errors.New("order not eligible for matching")
	ErrPriceMismatch         = errors.New("encrypted prices do not match")
	ErrNotOwner              = errors.New("requester does not own order")
	ErrAlreadyInactive       = errors.New("order already inactive")
	ErrNotExpired            = errors.New("order not yet expired")
	ErrExpiredPlacement      = errors.New("expiration not in the future")
	ErrStaleCiphertext       = errors.New("ciphertext changed since reveal was requested")
)

// Order is the central record. Amount and Price are opaque ciphertext
// handles; Amount only ever shrinks, and only the matching engine shrinks it.
// Active is a one-way flag. VerifiedAmount stays nil until the reveal
// coordinator sets it, exactly once, after proof verification.
type Order struct {
	ID         uint64         `json:"id"`
	Trader     common.Address `json:"trader"`
	Side       Side           `json:"side"`
	Amount     fhe.Ciphertext `json:"amount"`
	Price      fhe.Ciphertext `json:"price"`
	Instrument string         `json:"instrument"`
	Expiration time.Time      `json:"expiration"`
	Active     bool           `json:"active"`

	VerifiedAmount *big.Int  `json:"verifiedAmount,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Expired reports whether the order is past its expiration at now.
func (o *Order) Expired(now time.Time) bool {
	return !now.Before(o.Expiration)
}

// clone returns a defensive copy so callers cannot mutate ledger state.
func (o *Order) clone() *Order {
	cp := *o
	if o.VerifiedAmount != nil {
		cp.VerifiedAmount = new(big.Int).Set(o.VerifiedAmount)
	}
	return &cp
}
