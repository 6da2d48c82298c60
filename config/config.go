// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config builds the aegisdb configuration from flags, environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/luxfi/log"

	"github.com/luxfi/aegisdb/circuit"
	"github.com/luxfi/aegisdb/fhe"
	"github.com/luxfi/aegisdb/storage"
)

const (
	defaultDatabaseFile = "aegis.db"
	defaultBackend      = storage.BackendLevelDB
	defaultKeyFile      = "aegis.keys"
	defaultMinValue     = 0
	defaultMaxValue     = 255
	defaultParamSet     = circuit.DefaultParamSet
	defaultLogLevel     = "info"
	defaultVerify       = true

	DefaultCiphertextCacheSize = fhe.DefaultCacheSize
)

var (
	errUnknownBackend  = errors.New("unknown backend")
	errUnknownLogLevel = errors.New("unknown log level")
	errEmptyDatabase   = errors.New("database file not set")
)

// Config is the complete aegisdb configuration.
type Config struct {
	DatabaseFile        string `mapstructure:"database-file" json:"database-file"`
	Backend             string `mapstructure:"backend" json:"backend"`
	KeyFile             string `mapstructure:"key-file" json:"key-file"`
	MinValue            uint64 `mapstructure:"min-value" json:"min-value"`
	MaxValue            uint64 `mapstructure:"max-value" json:"max-value"`
	ParamSet            string `mapstructure:"param-set" json:"param-set"`
	CiphertextCacheSize int    `mapstructure:"ciphertext-cache-size" json:"ciphertext-cache-size"`
	VerifyCircuits      bool   `mapstructure:"verify-circuits" json:"verify-circuits"`
	LogLevel            string `mapstructure:"log-level" json:"log-level"`
}

// Validate checks that every field holds a usable value.
func (c *Config) Validate() error {
	switch c.Backend {
	case storage.BackendLevelDB:
		if c.DatabaseFile == "" {
			return errEmptyDatabase
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("%w: %q", errUnknownBackend, c.Backend)
	}
	if err := c.Domain().Validate(); err != nil {
		return err
	}
	if _, err := circuit.NewParameters(c.ParamSet); err != nil {
		return err
	}
	if c.CiphertextCacheSize < 0 {
		return fmt.Errorf("invalid %s: %d", CiphertextCacheSizeKey, c.CiphertextCacheSize)
	}
	if _, err := NewLogger(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Domain returns the configured plaintext domain.
func (c *Config) Domain() circuit.Domain {
	return circuit.Domain{Min: c.MinValue, Max: c.MaxValue}
}

// ContextOptions converts the configuration into encryption context
// options.
func (c *Config) ContextOptions(logger log.Logger) fhe.Options {
	return fhe.Options{
		Domain:    c.Domain(),
		ParamSet:  c.ParamSet,
		KeyFile:   c.KeyFile,
		CacheSize: c.CiphertextCacheSize,
		Verify:    c.VerifyCircuits,
		Log:       logger,
	}
}

// NewLogger creates a new logger at the named level.
func NewLogger(level string) (log.Logger, error) {
	switch strings.ToLower(level) {
	case "debug":
		return log.NewTestLogger(log.DebugLevel), nil
	case "info", "":
		return log.NewTestLogger(log.InfoLevel), nil
	case "warn", "warning":
		return log.NewTestLogger(log.WarnLevel), nil
	case "error":
		return log.NewTestLogger(log.ErrorLevel), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownLogLevel, level)
	}
}

// NewLogger creates a new logger at the configured level.
func (c *Config) NewLogger() (log.Logger, error) {
	return NewLogger(c.LogLevel)
}
