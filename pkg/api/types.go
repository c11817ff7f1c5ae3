package api

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
	"github.com/alexalidoperic/fheOtcDesk/pkg/ledger"
	"github.com/alexalidoperic/fheOtcDesk/pkg/reveal"
)

type PlaceOrderRequest struct {
	Trader      string         `json:"trader"`
	Side        string         `json:"side"`
	Instrument  string         `json:"instrument"`
	Amount      fhe.Ciphertext `json:"amount"`
	AmountProof hexutil.Bytes  `json:"amountProof"`
	Price       fhe.Ciphertext `json:"price"`
	PriceProof  hexutil.Bytes  `json:"priceProof"`
	ExpiresAt   int64          `json:"expiresAt"` // unix seconds

	// Signature is the trader's EIP-712 placement signature. Required when
	// the server runs with signature enforcement, ignored otherwise.
	Signature hexutil.Bytes `json:"signature,omitempty"`
}

type PlaceOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

type OrderView struct {
	ID             uint64         `json:"id"`
	Trader         string         `json:"trader"`
	Side           string         `json:"side"`
	Instrument     string         `json:"instrument"`
	Amount         fhe.Ciphertext `json:"amount"`
	Price          fhe.Ciphertext `json:"price"`
	ExpiresAt      int64          `json:"expiresAt"`
	Active         bool           `json:"active"`
	VerifiedAmount string         `json:"verifiedAmount,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func toOrderView(o *ledger.Order) OrderView {
	v := OrderView{
		ID:         o.ID,
		Trader:     o.Trader.Hex(),
		Side:       string(o.Side),
		Instrument: o.Instrument,
		Amount:     o.Amount,
		Price:      o.Price,
		ExpiresAt:  o.Expiration.Unix(),
		Active:     o.Active,
		CreatedAt:  o.CreatedAt,
	}
	if o.VerifiedAmount != nil {
		v.VerifiedAmount = o.VerifiedAmount.String()
	}
	return v
}

type MatchRequest struct {
	BuyOrderID  uint64 `json:"buyOrderId"`
	SellOrderID uint64 `json:"sellOrderId"`
}

type TradeView struct {
	ID          uint64         `json:"id"`
	BuyOrderID  uint64         `json:"buyOrderId"`
	SellOrderID uint64         `json:"sellOrderId"`
	Instrument  string         `json:"instrument"`
	Amount      fhe.Ciphertext `json:"amount"`
	Price       fhe.Ciphertext `json:"price"`
	Timestamp   time.Time      `json:"timestamp"`
}

func toTradeView(m *ledger.TradeMatch) TradeView {
	return TradeView{
		ID:          m.ID,
		BuyOrderID:  m.BuyOrderID,
		SellOrderID: m.SellOrderID,
		Instrument:  m.Instrument,
		Amount:      m.Amount,
		Price:       m.Price,
		Timestamp:   m.Timestamp,
	}
}

type CancelRequest struct {
	Trader    string        `json:"trader"`
	Signature hexutil.Bytes `json:"signature,omitempty"`
}

type RevealResponse struct {
	OrderID   uint64 `json:"orderId"`
	RequestID string `json:"requestId,omitempty"`
	Verified  string `json:"verified,omitempty"`
}

func toRevealResponse(t *reveal.Ticket) RevealResponse {
	r := RevealResponse{OrderID: t.OrderID, RequestID: t.RequestID}
	if t.Verified != nil {
		r.Verified = t.Verified.String()
	}
	return r
}

type RevealSubmitRequest struct {
	Amount string        `json:"amount"` // decimal cleartext
	Proof  hexutil.Bytes `json:"proof"`
}

// SealRequest asks the devnet vault to encrypt an amount/price pair for a
// party. Production deployments encrypt client-side against the coprocessor
// and never hit this endpoint.
type SealRequest struct {
	Party  string `json:"party"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

type SealResponse struct {
	Amount      fhe.Ciphertext `json:"amount"`
	AmountProof hexutil.Bytes  `json:"amountProof"`
	Price       fhe.Ciphertext `json:"price"`
	PriceProof  hexutil.Bytes  `json:"priceProof"`
}

type FulfillResponse struct {
	Values []string      `json:"values"`
	Proof  hexutil.Bytes `json:"proof"`
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}
