// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"

	// Top-level configuration keys
	DatabaseFileKey        = "database-file"
	BackendKey             = "backend"
	KeyFileKey             = "key-file"
	MinValueKey            = "min-value"
	MaxValueKey            = "max-value"
	ParamSetKey            = "param-set"
	CiphertextCacheSizeKey = "ciphertext-cache-size"
	VerifyCircuitsKey      = "verify-circuits"
	LogLevelKey            = "log-level"

	// Environment variable keys
	ConfigFileEnvKey          = "CONFIG_FILE"
	DatabaseFileEnvKey        = "DATABASE_FILE"
	BackendEnvKey             = "BACKEND"
	KeyFileEnvKey             = "KEY_FILE"
	MinValueEnvKey            = "INPUT_RANGE_START"
	MaxValueEnvKey            = "INPUT_RANGE_END"
	ParamSetEnvKey            = "PARAM_SET"
	CiphertextCacheSizeEnvKey = "CIPHERTEXT_CACHE_SIZE"
	VerifyCircuitsEnvKey      = "VERIFY_CIRCUITS"
	LogLevelEnvKey            = "LOG_LEVEL"
)

// envKeys maps configuration keys to the environment variables that set
// them.
var envKeys = map[string]string{
	ConfigFileKey:          ConfigFileEnvKey,
	DatabaseFileKey:        DatabaseFileEnvKey,
	BackendKey:             BackendEnvKey,
	KeyFileKey:             KeyFileEnvKey,
	MinValueKey:            MinValueEnvKey,
	MaxValueKey:            MaxValueEnvKey,
	ParamSetKey:            ParamSetEnvKey,
	CiphertextCacheSizeKey: CiphertextCacheSizeEnvKey,
	VerifyCircuitsKey:      VerifyCircuitsEnvKey,
	LogLevelKey:            LogLevelEnvKey,
}
