// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// AddFlags registers every configuration key on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "JSON, YAML or TOML config file")
	fs.String(DatabaseFileKey, defaultDatabaseFile, "database location")
	fs.String(BackendKey, defaultBackend, "storage backend: leveldb or memory")
	fs.String(KeyFileKey, defaultKeyFile, "key material file, empty for ephemeral keys")
	fs.Uint64(MinValueKey, defaultMinValue, "smallest storable value")
	fs.Uint64(MaxValueKey, defaultMaxValue, "largest storable value")
	fs.String(ParamSetKey, defaultParamSet, "TFHE parameter set: PN10QP27 or PN11QP54")
	fs.Int(CiphertextCacheSizeKey, DefaultCiphertextCacheSize, "decoded ciphertexts kept in memory, 0 disables")
	fs.Bool(VerifyCircuitsKey, defaultVerify, "check compiled circuits against sample inputs at startup")
	fs.String(LogLevelKey, defaultLogLevel, "debug, info, warn or error")
}

// BuildViper builds the viper instance. The config file is optional and may
// be given by flag or environment variable. Every key may also be set by
// its environment variable.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if filename := v.GetString(ConfigFileKey); filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
		}
	}
	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(DatabaseFileKey, defaultDatabaseFile)
	v.SetDefault(BackendKey, defaultBackend)
	v.SetDefault(KeyFileKey, defaultKeyFile)
	v.SetDefault(MinValueKey, defaultMinValue)
	v.SetDefault(MaxValueKey, defaultMaxValue)
	v.SetDefault(ParamSetKey, defaultParamSet)
	v.SetDefault(CiphertextCacheSizeKey, DefaultCiphertextCacheSize)
	v.SetDefault(VerifyCircuitsKey, defaultVerify)
	v.SetDefault(LogLevelKey, defaultLogLevel)
}

// BuildConfig constructs the config using Viper.
// The following precedence order is used. Each item takes precedence over the item below it:
//  1. Flags
//  2. Environment variables
//  3. Config file
//  4. Defaults
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}
