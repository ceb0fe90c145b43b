package core

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Store  StoreConfig
	Ledger LedgerConfig
}

// StoreConfig configures the persistent evidence store.
type StoreConfig struct {
	Dir string `env:"DIAGLEDGER_STORE_DIR"`

	Chunking  ChunkingConfig
	Transform TransformConfig

	// MaxPayloadBytes bounds a single evidence blob; 0 means unlimited.
	MaxPayloadBytes uint64 `env:"DIAGLEDGER_STORE_MAX_PAYLOAD" envDefault:"0"`
}

type ChunkingConfig struct {
	Min int `env:"DIAGLEDGER_CHUNK_MIN" envDefault:"4096"`
	Avg int `env:"DIAGLEDGER_CHUNK_AVG" envDefault:"16384"`
	Max int `env:"DIAGLEDGER_CHUNK_MAX" envDefault:"65536"`
}

type TransformConfig struct {
	Name      string `env:"DIAGLEDGER_STORE_TRANSFORM" envDefault:"zstd"`
	ZstdLevel int    `env:"DIAGLEDGER_STORE_ZSTD_LEVEL" envDefault:"3"`
}

// LedgerConfig configures the ledger client's retry and confirmation
// behavior. Timeouts apply only to the wait-for-confirmation step.
type LedgerConfig struct {
	Endpoint string `env:"DIAGLEDGER_LEDGER_ENDPOINT"`
	Account  string `env:"DIAGLEDGER_LEDGER_ACCOUNT"`

	// MaxAttempts bounds the internal retry loop for sequence conflicts
	// and confirmation timeouts.
	MaxAttempts    int           `env:"DIAGLEDGER_LEDGER_MAX_ATTEMPTS" envDefault:"3"`
	ConfirmTimeout time.Duration `env:"DIAGLEDGER_LEDGER_CONFIRM_TIMEOUT" envDefault:"30s"`
}

// FromEnv loads configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
