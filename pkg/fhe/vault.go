package fhe

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	bls "github.com/cloudflare/circl/sign/bls"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

type scheme = bls.KeyG1SigG2

// plaintext domain is euint64: arithmetic wraps modulo 2^64, matching the
// backend's unsigned word semantics.
var plainModulus = new(big.Int).Lsh(big.NewInt(1), 64)

// ClearVault is the reference Arithmetic implementation. Plaintexts live in a
// private map keyed by handle; the rest of the repo only ever touches the
// opaque handles. Authorization tags are keccak MACs under the vault secret
// and decryption proofs are BLS signatures by the vault's oracle key, so the
// trust shape matches a real coprocessor: handles are unforgeable, reveals
// are attributable.
type ClearVault struct {
	mu     sync.RWMutex
	secret []byte
	plain  map[common.Hash]*big.Int
	owner  map[common.Hash]common.Address

	oracleSK *bls.PrivateKey[scheme]
	oraclePK *bls.PublicKey[scheme]

	pending map[string][]Ciphertext
}

// NewClearVault derives the vault secret and oracle key from seed. A fixed
// seed gives a deterministic devnet vault; tests use the same path.
func NewClearVault(seed []byte) (*ClearVault, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("vault seed must be at least 32 bytes, got %d", len(seed))
	}
	sk, err := bls.KeyGen[scheme](seed, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle keygen: %w", err)
	}
	return &ClearVault{
		secret:   keccak([]byte("otcdesk/vault-secret"), seed),
		plain:    make(map[common.Hash]*big.Int),
		owner:    make(map[common.Hash]common.Address),
		oracleSK: sk,
		oraclePK: sk.PublicKey(),
		pending:  make(map[string][]Ciphertext),
	}, nil
}

// OraclePubkey exposes the reveal-proof verification key.
func (v *ClearVault) OraclePubkey() *bls.PublicKey[scheme] { return v.oraclePK }

// AuthorizedParty reports which party a handle was encrypted for.
func (v *ClearVault) AuthorizedParty(ct Ciphertext) (common.Address, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	party, ok := v.owner[ct.Key()]
	return party, ok
}

func (v *ClearVault) tag(handle []byte) []byte {
	return keccak(v.secret, handle)
}

// attest signs a handle binding so FromExternalHandle can check provenance.
func (v *ClearVault) attest(ct Ciphertext) []byte {
	return bls.Sign(v.oracleSK, keccak([]byte("otcdesk/attest"), ct.Handle, ct.Tag))
}

func (v *ClearVault) newHandle(plain *big.Int) (Ciphertext, error) {
	handle := make([]byte, 32)
	if _, err := rand.Read(handle); err != nil {
		return Ciphertext{}, fmt.Errorf("handle id: %w", err)
	}
	ct := Ciphertext{Handle: handle, Tag: v.tag(handle)}
	v.plain[ct.Key()] = new(big.Int).Set(plain)
	return ct, nil
}

func (v *ClearVault) lookup(ct Ciphertext) (*big.Int, error) {
	p, ok := v.plain[ct.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %x", ErrInvalidHandle, ct.Handle)
	}
	return p, nil
}

func (v *ClearVault) Encrypt(ctx context.Context, plain *big.Int, party common.Address) (Ciphertext, []byte, error) {
	if plain.Sign() < 0 || plain.Cmp(plainModulus) >= 0 {
		return Ciphertext{}, nil, fmt.Errorf("plaintext out of euint64 domain: %s", plain)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	ct, err := v.newHandle(plain)
	if err != nil {
		return Ciphertext{}, nil, err
	}
	v.owner[ct.Key()] = party
	return ct, v.attest(ct), nil
}

func (v *ClearVault) FromExternalHandle(ctx context.Context, ct Ciphertext, proof []byte) (Ciphertext, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if ct.IsEmpty() || len(ct.Handle) != 32 {
		return Ciphertext{}, fmt.Errorf("%w: malformed handle", ErrInvalidHandle)
	}
	if !bytes.Equal(ct.Tag, v.tag(ct.Handle)) {
		return Ciphertext{}, fmt.Errorf("%w: authorization tag mismatch", ErrInvalidHandle)
	}
	if !bls.Verify(v.oraclePK, keccak([]byte("otcdesk/attest"), ct.Handle, ct.Tag), bls.Signature(proof)) {
		return Ciphertext{}, fmt.Errorf("%w: attestation proof rejected", ErrInvalidHandle)
	}
	if _, ok := v.plain[ct.Key()]; !ok {
		return Ciphertext{}, fmt.Errorf("%w: handle not provisioned", ErrInvalidHandle)
	}
	return ct, nil
}

func (v *ClearVault) Sub(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pa, err := v.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	pb, err := v.lookup(b)
	if err != nil {
		return Ciphertext{}, err
	}
	diff := new(big.Int).Sub(pa, pb)
	diff.Mod(diff, plainModulus)
	return v.newHandle(diff)
}

func (v *ClearVault) Min(ctx context.Context, a, b Ciphertext) (Ciphertext, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pa, err := v.lookup(a)
	if err != nil {
		return Ciphertext{}, err
	}
	pb, err := v.lookup(b)
	if err != nil {
		return Ciphertext{}, err
	}
	m := pa
	if pb.Cmp(pa) < 0 {
		m = pb
	}
	return v.newHandle(m)
}

func (v *ClearVault) IsZero(ctx context.Context, a Ciphertext) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	p, err := v.lookup(a)
	if err != nil {
		return false, err
	}
	return p.Sign() == 0, nil
}

func (v *ClearVault) RequestDecryption(ctx context.Context, handles []Ciphertext) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ct := range handles {
		if _, err := v.lookup(ct); err != nil {
			return "", err
		}
	}
	id := uuid.NewString()
	v.pending[id] = append([]Ciphertext(nil), handles...)
	return id, nil
}

// Decrypt plays the off-band decryption oracle: it returns the plaintexts of
// handles together with a BLS proof over RevealDigest. Outside devnet this
// runs in a separate authority, never in the desk process.
func (v *ClearVault) Decrypt(ctx context.Context, handles []Ciphertext) ([]*big.Int, []byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	clears := make([]*big.Int, 0, len(handles))
	for _, ct := range handles {
		p, err := v.lookup(ct)
		if err != nil {
			return nil, nil, err
		}
		clears = append(clears, new(big.Int).Set(p))
	}
	proof := bls.Sign(v.oracleSK, RevealDigest(handles, clears))
	return clears, proof, nil
}

// Fulfill resolves a pending decryption request by id.
func (v *ClearVault) Fulfill(ctx context.Context, requestID string) ([]*big.Int, []byte, error) {
	v.mu.RLock()
	handles, ok := v.pending[requestID]
	v.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown decryption request %s", requestID)
	}
	return v.Decrypt(ctx, handles)
}

func (v *ClearVault) VerifyProof(ctx context.Context, handles []Ciphertext, clears []*big.Int, proof []byte) (bool, error) {
	if len(handles) != len(clears) {
		return false, fmt.Errorf("handle/clear count mismatch: %d vs %d", len(handles), len(clears))
	}
	return bls.Verify(v.oraclePK, RevealDigest(handles, clears), bls.Signature(proof)), nil
}

var _ Arithmetic = (*ClearVault)(nil)
