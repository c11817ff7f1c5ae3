// seal-order asks a devnet node to encrypt an amount/price pair and prints a
// placement request body ready for POST /api/v1/orders. With -key it also
// signs the placement, for nodes running with signature enforcement. Against
// production nodes the seal endpoint is disabled and encryption happens
// client-side.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alexalidoperic/fheOtcDesk/pkg/auth"
	"github.com/alexalidoperic/fheOtcDesk/pkg/fhe"
)

type sealRequest struct {
	Party  string `json:"party"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

type sealResponse struct {
	Amount      fhe.Ciphertext `json:"amount"`
	AmountProof hexutil.Bytes  `json:"amountProof"`
	Price       fhe.Ciphertext `json:"price"`
	PriceProof  hexutil.Bytes  `json:"priceProof"`
}

type placeRequest struct {
	Trader      string         `json:"trader"`
	Side        string         `json:"side"`
	Instrument  string         `json:"instrument"`
	Amount      fhe.Ciphertext `json:"amount"`
	AmountProof hexutil.Bytes  `json:"amountProof"`
	Price       fhe.Ciphertext `json:"price"`
	PriceProof  hexutil.Bytes  `json:"priceProof"`
	ExpiresAt   int64          `json:"expiresAt"`
	Signature   hexutil.Bytes  `json:"signature,omitempty"`
}

func main() {
	node := flag.String("node", "http://localhost:8080", "node base URL")
	trader := flag.String("trader", "", "trader address (0x...), derived from -key when omitted")
	side := flag.String("side", "BUY", "BUY or SELL")
	instrument := flag.String("instrument", "WETH-USDC", "instrument symbol")
	amount := flag.String("amount", "", "order amount (decimal)")
	price := flag.String("price", "", "limit price (decimal)")
	ttl := flag.Duration("ttl", time.Hour, "time until expiration")
	keyHex := flag.String("key", "", "private key hex for signing the placement")
	chainID := flag.Int64("chain-id", 1337, "EIP-712 chain id")
	flag.Parse()

	var signer *auth.Signer
	if *keyHex != "" {
		var err error
		signer, err = auth.FromPrivateKeyHex(*keyHex)
		if err != nil {
			fatal("parse key: %v", err)
		}
		if *trader == "" {
			*trader = signer.Address().Hex()
		}
	}
	if *trader == "" || *amount == "" || *price == "" {
		fmt.Fprintln(os.Stderr, "usage: seal-order -trader 0x... -amount N -price P [-side BUY|SELL] [-instrument SYM] [-ttl 1h] [-key HEX] [-node URL]")
		os.Exit(2)
	}

	body, err := json.Marshal(sealRequest{Party: *trader, Amount: *amount, Price: *price})
	if err != nil {
		fatal("encode request: %v", err)
	}
	resp, err := http.Post(*node+"/api/v1/seal", "application/json", bytes.NewReader(body))
	if err != nil {
		fatal("seal request: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal("read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		fatal("seal rejected (%d): %s", resp.StatusCode, raw)
	}

	var sealed sealResponse
	if err := json.Unmarshal(raw, &sealed); err != nil {
		fatal("decode response: %v", err)
	}

	placement := placeRequest{
		Trader:      *trader,
		Side:        *side,
		Instrument:  *instrument,
		Amount:      sealed.Amount,
		AmountProof: sealed.AmountProof,
		Price:       sealed.Price,
		PriceProof:  sealed.PriceProof,
		ExpiresAt:   time.Now().Add(*ttl).Unix(),
	}
	if signer != nil {
		domain := auth.DefaultDomain()
		domain.ChainID = big.NewInt(*chainID)
		verifier := auth.NewVerifier(domain)
		sig, err := verifier.SignPlacement(signer, &auth.Placement{
			Trader:       common.HexToAddress(*trader),
			Side:         auth.SideToUint8(*side),
			Instrument:   *instrument,
			AmountHandle: sealed.Amount.Key(),
			PriceHandle:  sealed.Price.Key(),
			ExpiresAt:    big.NewInt(placement.ExpiresAt),
		})
		if err != nil {
			fatal("sign placement: %v", err)
		}
		placement.Signature = sig
	}

	out, err := json.MarshalIndent(placement, "", "  ")
	if err != nil {
		fatal("encode placement: %v", err)
	}
	fmt.Println(string(out))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
