// Package reveal implements the two-phase decryption-verification protocol
// that turns an order's encrypted amount into a publicly trusted cleartext
// value. Phase one registers a decryption request; phase two submits the
// oracle's cleartext with a proof, which is verified before the value is
// recorded exactly once on the order.
//
// Anyone may request a reveal. Authorization lives in the decryption oracle:
// it only signs plaintexts it is willing to make public, and an invalid or
// foreign proof is rejected here. No lock is held between the two phases;
// the set-once semantics of the verified amount make concurrent submissions
// safe.
package reveal

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
)

// ErrInvalidProof signals a submission whose proof does not verify against
// the order's ciphertext. Nothing is recorded in that case.
var ErrInvalidProof = errors.New("invalid decryption proof")

// Ticket is the outcome of RequestReveal. Either RequestID is set and the
// caller must run the oracle round-trip, or Verified carries the cached
// already-public amount and no further work is needed.
type Ticket struct {
	OrderID   uint64   `json:"orderId"`
	RequestID string   `json:"requestId,omitempty"`
	Verified  *big.Int `json:"verified,omitempty"`
}

type Coordinator struct {
	ledger *ledger.Ledger
	arith  fhe.Arithmetic
	log    *zap.SugaredLogger
}

func NewCoordinator(l *ledger.Ledger, arith fhe.Arithmetic, log *zap.SugaredLogger) *Coordinator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Coordinator{ledger: l, arith: arith, log: log}
}

// RequestReveal opens phase one for an order's remaining amount. If the
// amount is already verified the cached value is returned instead of a
// request id: already-verified is a success in disguise, not an error.
func (c *Coordinator) RequestReveal(ctx context.Context, orderID uint64) (*Ticket, error) {
	o, err := c.ledger.Get(orderID)
	if err != nil {
		return nil, err
	}
	if o.VerifiedAmount != nil {
		return &Ticket{OrderID: orderID, Verified: o.VerifiedAmount}, nil
	}
	reqID, err := c.arith.RequestDecryption(ctx, []fhe.Ciphertext{o.Amount})
	if err != nil {
		return nil, fmt.Errorf("request decryption: %w", err)
	}
	c.log.Infow("reveal_requested", "order", orderID, "request", reqID)
	return &Ticket{OrderID: orderID, RequestID: reqID}, nil
}

// SubmitReveal closes phase two: the proof is checked against the order's
// current encrypted amount and, on success, the cleartext is recorded
// exactly once. A concurrent second successful submission returns the value
// that won the race; resubmitting after success is a no-op returning the
// recorded value.
func (c *Coordinator) SubmitReveal(ctx context.Context, orderID uint64, clear *big.Int, proof []byte) (*big.Int, error) {
	o, err := c.ledger.Get(orderID)
	if err != nil {
		return nil, err
	}
	if o.VerifiedAmount != nil {
		return o.VerifiedAmount, nil
	}
	ok, err := c.arith.VerifyProof(ctx, []fhe.Ciphertext{o.Amount}, []*big.Int{clear}, proof)
	if err != nil {
		return nil, fmt.Errorf("verify proof: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %d", ErrInvalidProof, orderID)
	}
	v, err := c.ledger.SetVerifiedAmount(orderID, clear, o.Amount)
	if err != nil {
		return nil, err
	}
	c.log.Infow("reveal_verified", "order", orderID, "amount", v.String())
	return v, nil
}
