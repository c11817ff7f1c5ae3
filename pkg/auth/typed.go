package auth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain is the EIP-712 domain separator. Off-chain desks sign with a zero
// verifying contract; ChainID still fences replays across deployments.
type Domain struct {
	Name    string
	Version string
	ChainID *big.Int
}

func DefaultDomain() Domain {
	return Domain{Name: "fheOtcDesk", Version: "1", ChainID: big.NewInt(1337)}
}

// Placement is the typed data a trader signs to place an order. The
// ciphertext handle hashes pin the signature to the exact encrypted amount
// and price submitted alongside it.
type Placement struct {
	Trader       common.Address
	Side         uint8 // 1 = buy, 2 = sell
	Instrument   string
	AmountHandle common.Hash
	PriceHandle  common.Hash
	ExpiresAt    *big.Int // unix seconds
}

// Cancellation is the typed data a trader signs to cancel an order.
type Cancellation struct {
	OrderID *big.Int
	Trader  common.Address
}

func SideToUint8(side string) uint8 {
	switch side {
	case "BUY":
		return 1
	case "SELL":
		return 2
	default:
		return 0
	}
}

// Verifier hashes and checks typed-data signatures for one domain.
type Verifier struct {
	domain apitypes.TypedDataDomain
}

func NewVerifier(d Domain) *Verifier {
	return &Verifier{domain: apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(d.ChainID),
		VerifyingContract: common.Address{}.Hex(),
	}}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

func (v *Verifier) HashPlacement(p *Placement) ([]byte, error) {
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Placement": []apitypes.Type{
				{Name: "trader", Type: "address"},
				{Name: "side", Type: "uint8"},
				{Name: "instrument", Type: "string"},
				{Name: "amountHandle", Type: "bytes32"},
				{Name: "priceHandle", Type: "bytes32"},
				{Name: "expiresAt", Type: "uint256"},
			},
		},
		PrimaryType: "Placement",
		Domain:      v.domain,
		Message: apitypes.TypedDataMessage{
			"trader":       p.Trader.Hex(),
			"side":         fmt.Sprintf("%d", p.Side),
			"instrument":   p.Instrument,
			"amountHandle": hexutil.Encode(p.AmountHandle[:]),
			"priceHandle":  hexutil.Encode(p.PriceHandle[:]),
			"expiresAt":    p.ExpiresAt.String(),
		},
	}
	return v.digest(td)
}

func (v *Verifier) HashCancellation(c *Cancellation) ([]byte, error) {
	td := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			"Cancellation": []apitypes.Type{
				{Name: "orderId", Type: "uint256"},
				{Name: "trader", Type: "address"},
			},
		},
		PrimaryType: "Cancellation",
		Domain:      v.domain,
		Message: apitypes.TypedDataMessage{
			"orderId": c.OrderID.String(),
			"trader":  c.Trader.Hex(),
		},
	}
	return v.digest(td)
}

// digest computes keccak256("\x19\x01" || domainSeparator || structHash).
func (v *Verifier) digest(td apitypes.TypedData) ([]byte, error) {
	domainSep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("hash domain: %w", err)
	}
	structHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("hash message: %w", err)
	}
	return crypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash), nil
}

func (v *Verifier) SignPlacement(s *Signer, p *Placement) ([]byte, error) {
	hash, err := v.HashPlacement(p)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

func (v *Verifier) SignCancellation(s *Signer, c *Cancellation) ([]byte, error) {
	hash, err := v.HashCancellation(c)
	if err != nil {
		return nil, err
	}
	return s.Sign(hash)
}

// VerifyPlacement reports whether signature was produced by p.Trader over p.
func (v *Verifier) VerifyPlacement(p *Placement, signature []byte) (bool, error) {
	hash, err := v.HashPlacement(p)
	if err != nil {
		return false, err
	}
	addr, err := RecoverAddress(hash, signature)
	if err != nil {
		return false, nil
	}
	return addr == p.Trader, nil
}

func (v *Verifier) VerifyCancellation(c *Cancellation, signature []byte) (bool, error) {
	hash, err := v.HashCancellation(c)
	if err != nil {
		return false, err
	}
	addr, err := RecoverAddress(hash, signature)
	if err != nil {
		return false, nil
	}
	return addr == c.Trader, nil
}
