package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type HTTP struct {
	ListenAddr string
}

type Vault struct {
	// SeedHex feeds the devnet vault's secret and oracle key. Empty disables
	// the in-process vault, which also disables the seal/fulfill endpoints.
	SeedHex string
}

type Desk struct {
	DataDir     string
	Instruments []string
	// ExpirySweep drives the background expiration sweep. Zero disables it;
	// matching still rejects expired orders lazily.
	ExpirySweep time.Duration
}

type Kafka struct {
	Brokers []string // empty disables the kafka match-fact emitter
	Topic   string
}

type Auth struct {
	// RequireSignatures makes the API reject placements and cancels without
	// a valid EIP-712 trader signature.
	RequireSignatures bool
	ChainID           int64
}

type Config struct {
	HTTP  HTTP
	Vault Vault
	Desk  Desk
	Kafka Kafka
	Auth  Auth
}

func Default() Config {
	return Config{
		HTTP: HTTP{ListenAddr: ":8080"},
		Vault: Vault{
			// devnet default, not a secret worth protecting
			SeedHex: "6f74636465736b2d6465766e65742d6f7261636c652d736565642d30303031",
		},
		Desk: Desk{
			DataDir:     "data/desk",
			Instruments: []string{"WETH-USDC"},
			ExpirySweep: 0,
		},
		Kafka: Kafka{Topic: "otc.matches"},
		Auth:  Auth{RequireSignatures: false, ChainID: 1337},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("HTTP_LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv("VAULT_SEED_HEX"); v != "" {
		cfg.Vault.SeedHex = v
	}
	if v := os.Getenv("DESK_DATA_DIR"); v != "" {
		cfg.Desk.DataDir = v
	}
	if v := os.Getenv("DESK_INSTRUMENTS"); v != "" {
		cfg.Desk.Instruments = splitList(v)
	}
	if v := os.Getenv("DESK_EXPIRY_SWEEP_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Desk.ExpirySweep = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("AUTH_REQUIRE_SIGNATURES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.RequireSignatures = b
		}
	}
	if v := os.Getenv("AUTH_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Auth.ChainID = id
		}
	}

	return cfg
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
