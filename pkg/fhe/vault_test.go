package fhe

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var testParty = common.HexToAddress("0x1111111111111111111111111111111111111111")

func newTestVault(t *testing.T) *ClearVault {
	t.Helper()
	v, err := NewClearVault(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("NewClearVault: %v", err)
	}
	return v
}

func mustEncrypt(t *testing.T, v *ClearVault, plain int64) (Ciphertext, []byte) {
	t.Helper()
	ct, proof, err := v.Encrypt(context.Background(), big.NewInt(plain), testParty)
	if err != nil {
		t.Fatalf("Encrypt(%d): %v", plain, err)
	}
	return ct, proof
}

func decryptOne(t *testing.T, v *ClearVault, ct Ciphertext) *big.Int {
	t.Helper()
	clears, _, err := v.Decrypt(context.Background(), []Ciphertext{ct})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	return clears[0]
}

func TestEncryptRoundTrip(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	ct, proof := mustEncrypt(t, v, 42)
	if _, err := v.FromExternalHandle(ctx, ct, proof); err != nil {
		t.Fatalf("FromExternalHandle: %v", err)
	}
	if got := decryptOne(t, v, ct); got.Int64() != 42 {
		t.Errorf("decrypted %s, want 42", got)
	}
	if party, ok := v.AuthorizedParty(ct); !ok || party != testParty {
		t.Errorf("AuthorizedParty = %v, %v", party, ok)
	}
}

func TestFromExternalHandle_Rejections(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	ct, proof := mustEncrypt(t, v, 7)

	foreign, err := NewClearVault(bytes.Repeat([]byte{0x99}, 32))
	if err != nil {
		t.Fatalf("NewClearVault: %v", err)
	}
	foreignCt, foreignProof, err := foreign.Encrypt(ctx, big.NewInt(7), testParty)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tamperedTag := Ciphertext{Handle: ct.Handle, Tag: append([]byte(nil), ct.Tag...)}
	tamperedTag.Tag[0] ^= 0xff

	tamperedProof := append([]byte(nil), proof...)
	tamperedProof[0] ^= 0xff

	tests := []struct {
		name  string
		ct    Ciphertext
		proof []byte
	}{
		{"empty handle", Ciphertext{}, proof},
		{"short handle", Ciphertext{Handle: []byte{1, 2, 3}, Tag: ct.Tag}, proof},
		{"tampered tag", tamperedTag, proof},
		{"tampered proof", ct, tamperedProof},
		{"foreign vault handle", foreignCt, foreignProof},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.FromExternalHandle(ctx, tt.ct, tt.proof); err == nil {
				t.Error("expected rejection, got nil error")
			}
		})
	}
}

func TestSubWrapsModulo(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	a, _ := mustEncrypt(t, v, 5)
	b, _ := mustEncrypt(t, v, 7)
	diff, err := v.Sub(ctx, a, b)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	want := new(big.Int).Sub(plainModulus, big.NewInt(2))
	if got := decryptOne(t, v, diff); got.Cmp(want) != 0 {
		t.Errorf("5-7 = %s, want %s", got, want)
	}
	if zero, err := v.IsZero(ctx, diff); err != nil || zero {
		t.Errorf("IsZero(5-7) = %v, %v; want false, nil", zero, err)
	}

	same, err := v.Sub(ctx, a, a)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if zero, err := v.IsZero(ctx, same); err != nil || !zero {
		t.Errorf("IsZero(5-5) = %v, %v; want true, nil", zero, err)
	}
}

func TestMin(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	a, _ := mustEncrypt(t, v, 10)
	b, _ := mustEncrypt(t, v, 6)
	m, err := v.Min(ctx, a, b)
	if err != nil {
		t.Fatalf("Min: %v", err)
	}
	if got := decryptOne(t, v, m); got.Int64() != 6 {
		t.Errorf("min(10,6) = %s, want 6", got)
	}
}

func TestUnknownHandle(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()
	a, _ := mustEncrypt(t, v, 1)

	unknown := Ciphertext{Handle: bytes.Repeat([]byte{0xab}, 32), Tag: v.tag(bytes.Repeat([]byte{0xab}, 32))}
	if _, err := v.Sub(ctx, a, unknown); err == nil {
		t.Error("Sub with unknown handle: expected error")
	}
	if _, err := v.IsZero(ctx, unknown); err == nil {
		t.Error("IsZero with unknown handle: expected error")
	}
}

func TestDecryptionRequestFlow(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	ct, _ := mustEncrypt(t, v, 123)
	reqID, err := v.RequestDecryption(ctx, []Ciphertext{ct})
	if err != nil {
		t.Fatalf("RequestDecryption: %v", err)
	}
	clears, proof, err := v.Fulfill(ctx, reqID)
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if clears[0].Int64() != 123 {
		t.Errorf("fulfilled clear = %s, want 123", clears[0])
	}
	ok, err := v.VerifyProof(ctx, []Ciphertext{ct}, clears, proof)
	if err != nil || !ok {
		t.Errorf("VerifyProof = %v, %v; want true, nil", ok, err)
	}

	// wrong cleartext must not verify
	ok, err = v.VerifyProof(ctx, []Ciphertext{ct}, []*big.Int{big.NewInt(124)}, proof)
	if err != nil || ok {
		t.Errorf("VerifyProof(wrong clear) = %v, %v; want false, nil", ok, err)
	}

	if _, _, err := v.Fulfill(ctx, "no-such-request"); err == nil {
		t.Error("Fulfill(unknown id): expected error")
	}
}

func TestEncryptDomainBounds(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	if _, _, err := v.Encrypt(ctx, big.NewInt(-1), testParty); err == nil {
		t.Error("Encrypt(-1): expected error")
	}
	if _, _, err := v.Encrypt(ctx, plainModulus, testParty); err == nil {
		t.Error("Encrypt(2^64): expected error")
	}
}
