package auth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testPlacement(trader common.Address) *Placement {
	return &Placement{
		Trader:       trader,
		Side:         1,
		Instrument:   "WETH-USDC",
		AmountHandle: common.HexToHash("0x01"),
		PriceHandle:  common.HexToHash("0x02"),
		ExpiresAt:    big.NewInt(1700003600),
	}
}

func TestPlacementSignRoundTrip(t *testing.T) {
	v := NewVerifier(DefaultDomain())
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := testPlacement(key.Address())

	sig, err := v.SignPlacement(key, p)
	if err != nil {
		t.Fatalf("SignPlacement: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if ok, err := v.VerifyPlacement(p, sig); err != nil || !ok {
		t.Errorf("VerifyPlacement = %v, %v; want true, nil", ok, err)
	}
}

func TestPlacementSignatureBindsFields(t *testing.T) {
	v := NewVerifier(DefaultDomain())
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := testPlacement(key.Address())
	sig, err := v.SignPlacement(key, p)
	if err != nil {
		t.Fatalf("SignPlacement: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Placement)
	}{
		{"different trader", func(p *Placement) { p.Trader = common.HexToAddress("0xdead") }},
		{"different side", func(p *Placement) { p.Side = 2 }},
		{"different instrument", func(p *Placement) { p.Instrument = "WBTC-USDC" }},
		{"different amount handle", func(p *Placement) { p.AmountHandle = common.HexToHash("0xff") }},
		{"different price handle", func(p *Placement) { p.PriceHandle = common.HexToHash("0xff") }},
		{"different expiration", func(p *Placement) { p.ExpiresAt = big.NewInt(1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := *p
			tt.mutate(&mutated)
			if ok, err := v.VerifyPlacement(&mutated, sig); err != nil || ok {
				t.Errorf("VerifyPlacement = %v, %v; want false, nil", ok, err)
			}
		})
	}
}

func TestPlacementSignatureBoundToDomain(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p := testPlacement(key.Address())

	mainnet := NewVerifier(Domain{Name: "fheOtcDesk", Version: "1", ChainID: big.NewInt(1)})
	devnet := NewVerifier(DefaultDomain())
	sig, err := devnet.SignPlacement(key, p)
	if err != nil {
		t.Fatalf("SignPlacement: %v", err)
	}
	if ok, err := mainnet.VerifyPlacement(p, sig); err != nil || ok {
		t.Errorf("cross-chain verify = %v, %v; want false, nil", ok, err)
	}
}

func TestCancellationSignRoundTrip(t *testing.T) {
	v := NewVerifier(DefaultDomain())
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c := &Cancellation{OrderID: big.NewInt(7), Trader: key.Address()}

	sig, err := v.SignCancellation(key, c)
	if err != nil {
		t.Fatalf("SignCancellation: %v", err)
	}
	if ok, err := v.VerifyCancellation(c, sig); err != nil || !ok {
		t.Errorf("VerifyCancellation = %v, %v; want true, nil", ok, err)
	}

	other := &Cancellation{OrderID: big.NewInt(8), Trader: key.Address()}
	if ok, err := v.VerifyCancellation(other, sig); err != nil || ok {
		t.Errorf("verify on other order = %v, %v; want false, nil", ok, err)
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	// well-known hardhat dev key
	const hexKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	for _, in := range []string{hexKey, "0x" + hexKey} {
		s, err := FromPrivateKeyHex(in)
		if err != nil {
			t.Fatalf("FromPrivateKeyHex(%q): %v", in, err)
		}
		if s.Address() != want {
			t.Errorf("address = %s, want %s", s.Address(), want)
		}
	}
	if _, err := FromPrivateKeyHex("zz"); err == nil {
		t.Error("expected error for garbage key")
	}

	sig, err := mustSigner(t, hexKey).Sign(make([]byte, 32))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	addr, err := RecoverAddress(make([]byte, 32), sig)
	if err != nil || addr != want {
		t.Errorf("RecoverAddress = %s, %v; want %s, nil", addr, err, want)
	}
}

func mustSigner(t *testing.T, hexKey string) *Signer {
	t.Helper()
	s, err := FromPrivateKeyHex(hexKey)
	if err != nil {
		t.Fatalf("FromPrivateKeyHex: %v", err)
	}
	return s
}
