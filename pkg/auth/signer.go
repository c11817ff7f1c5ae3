// Package auth authenticates desk requests with EIP-712 typed-data
// signatures over secp256k1. Placement signatures bind the ciphertext
// handles, so a signature cannot be replayed onto different encrypted
// values.
package auth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a secp256k1 key pair and its derived address.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// FromPrivateKeyHex parses a 64-hex-char private key, with or without the
// 0x prefix.
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// Sign produces a 65-byte [R || S || V] signature over a 32-byte digest.
func (s *Signer) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be 32 bytes, got %d", len(hash))
	}
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// RecoverAddress returns the address that produced a signature over hash.
func RecoverAddress(hash, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	if len(hash) != 32 {
		return common.Address{}, fmt.Errorf("invalid hash length: %d", len(hash))
	}
	pub, err := crypto.Ecrecover(hash, signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	key, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return common.Address{}, fmt.Errorf("unmarshal public key: %w", err)
	}
	return crypto.PubkeyToAddress(*key), nil
}
