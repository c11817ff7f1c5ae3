// Package fhe defines the boundary to the homomorphic encryption backend.
//
// The desk never sees order quantities or prices in the clear: it holds opaque
// Ciphertext handles and delegates every arithmetic step to an Arithmetic
// implementation. ClearVault is the reference implementation used for devnet
// and tests; a production deployment swaps in a client for the real
// coprocessor behind the same interface.
package fhe

import (
	"bytes"
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrUnavailable signals the encryption backend could not be reached.
	// Callers retry with backoff; the ledger never retries internally.
	ErrUnavailable = errors.New("encryption backend unavailable")

	// ErrInvalidHandle signals a ciphertext whose authorization tag or
	// attestation proof does not check out for this desk.
	ErrInvalidHandle = errors.New("invalid ciphertext handle")
)

// Ciphertext is an opaque handle to an encrypted value. Handle identifies the
// ciphertext inside the backend; Tag binds the handle to this desk so foreign
// or forged handles are rejected at the door.
type Ciphertext struct {
	Handle hexutil.Bytes `json:"handle"`
	Tag    hexutil.Bytes `json:"tag"`
}

func (c Ciphertext) IsEmpty() bool {
	return len(c.Handle) == 0
}

func (c Ciphertext) Equal(o Ciphertext) bool {
	return bytes.Equal(c.Handle, o.Handle) && bytes.Equal(c.Tag, o.Tag)
}

// Key returns the handle as a map key.
func (c Ciphertext) Key() common.Hash {
	return common.BytesToHash(c.Handle)
}

// Arithmetic is the contract the order ledger consumes. Every method may fail
// with ErrUnavailable on a remote backend; none of them ever exposes
// plaintext except VerifyProof, which checks plaintext the caller already has.
type Arithmetic interface {
	// Encrypt produces a handle for plain authorized for party, plus an
	// attestation proof accepted by FromExternalHandle.
	Encrypt(ctx context.Context, plain *big.Int, party common.Address) (Ciphertext, []byte, error)

	// FromExternalHandle validates an inbound ciphertext: the tag must be
	// bound to this desk and the attestation proof must verify.
	FromExternalHandle(ctx context.Context, ct Ciphertext, proof []byte) (Ciphertext, error)

	// Sub computes a-b homomorphically, wrapping modulo the plaintext domain.
	Sub(ctx context.Context, a, b Ciphertext) (Ciphertext, error)

	// Min computes min(a,b) homomorphically.
	Min(ctx context.Context, a, b Ciphertext) (Ciphertext, error)

	// IsZero runs the homomorphic zero-test. This is the only predicate the
	// backend discloses about a ciphertext.
	IsZero(ctx context.Context, a Ciphertext) (bool, error)

	// RequestDecryption registers handles for an off-band reveal and returns
	// an opaque request id the decryption oracle later fulfills.
	RequestDecryption(ctx context.Context, handles []Ciphertext) (string, error)

	// VerifyProof checks that clears are the authentic plaintexts of handles.
	VerifyProof(ctx context.Context, handles []Ciphertext, clears []*big.Int, proof []byte) (bool, error)
}

// RevealDigest is the message the decryption oracle signs: a keccak over the
// handles and their claimed plaintexts. Fixed-width plaintext encoding keeps
// the digest unambiguous.
func RevealDigest(handles []Ciphertext, clears []*big.Int) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, ct := range handles {
		h.Write(ct.Handle)
	}
	for _, v := range clears {
		h.Write(common.LeftPadBytes(v.Bytes(), 32))
	}
	return h.Sum(nil)
}

func keccak(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
