// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/aegisdb/config"
	"github.com/luxfi/aegisdb/storage"
	"github.com/luxfi/aegisdb/store"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aegisdb",
	Short: "aegisdb - encrypted key-value store",
	Long: `aegisdb keeps integer values as fully homomorphic ciphertexts and
adds, multiplies, compares and searches them without decrypting the stored
records.`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(multiplyCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(ciphertextCmd)
	rootCmd.AddCommand(publicKeyCmd)
	rootCmd.AddCommand(demoCmd)
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(cmd *cobra.Command, fn func(s *store.Store) error) error {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	table, err := storage.Open(cfg.Backend, cfg.DatabaseFile)
	if err != nil {
		return err
	}
	s, err := store.Open(table, cfg.ContextOptions(logger))
	if err != nil {
		return err
	}
	logger.Debug("opened store",
		log.String("backend", cfg.Backend),
		log.String("database", cfg.DatabaseFile),
	)

	err = fn(s)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// printKeys writes one key per line. No keys writes nothing.
func printKeys(w io.Writer, keys []string) {
	for _, key := range keys {
		fmt.Fprintln(w, key)
	}
}

func parseValue(arg string) (uint64, error) {
	v, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", arg, err)
	}
	return v, nil
}

var putCmd = &cobra.Command{
	Use:   "put KEY VALUE",
	Short: "Encrypt and store a value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseValue(args[1])
		if err != nil {
			return err
		}
		return withStore(cmd, func(s *store.Store) error {
			return s.Put(args[0], value)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Decrypt and print a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.Store) error {
			value, found, err := s.Get(args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("(not found)")
				return nil
			}
			fmt.Println(value)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Remove a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.Store) error {
			return s.Delete(args[0])
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add KEY1 KEY2 RESULT",
	Short: "Store the encrypted sum of two records",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.Store) error {
			return s.Add(args[0], args[1], args[2])
		})
	},
}

var multiplyCmd = &cobra.Command{
	Use:   "multiply KEY1 KEY2 RESULT",
	Short: "Store the encrypted product of two records",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.Store) error {
			return s.Multiply(args[0], args[1], args[2])
		})
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare KEY1 KEY2",
	Short: "Report whether two records hold the same value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.Store) error {
			eq, err := s.Compare(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(eq)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search VALUE",
	Short: "List the keys holding a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseValue(args[0])
		if err != nil {
			return err
		}
		return withStore(cmd, func(s *store.Store) error {
			keys, err := s.Search(value)
			if err != nil {
				return err
			}
			printKeys(os.Stdout, keys)
			return nil
		})
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List every key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(s *store.Store) error {
			keys, err := s.Keys()
			if err != nil {
				return err
			}
			printKeys(os.Stdout, keys)
			return nil
		})
	},
}

var ciphertextCmd = &cobra.Command{
	Use:   "ciphertext KEY",
	Short: "Print the stored ciphertext blob as hex",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(s *store.Store) error {
			blob, err := s.Ciphertext(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(blob))
			return nil
		})
	},
}

var publicKeyCmd = &cobra.Command{
	Use:   "public-key",
	Short: "Print the framed public key as hex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, func(s *store.Store) error {
			blob, err := s.Context().PublicKey()
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(blob))
			return nil
		})
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the example workload against the configured store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd, runDemo)
	},
}

func runDemo(s *store.Store) error {
	for _, rec := range []struct {
		key   string
		value uint64
	}{
		{"a", 10},
		{"b", 20},
		{"c", 10},
		{"d", 30},
	} {
		if err := s.Put(rec.key, rec.value); err != nil {
			return err
		}
		fmt.Printf("put %s = %d\n", rec.key, rec.value)
	}

	keys, err := s.Search(10)
	if err != nil {
		return err
	}
	fmt.Printf("search 10 -> %v\n", keys)

	if err := s.Add("a", "b", "sum"); err != nil {
		return err
	}
	if err := printValue(s, "sum"); err != nil {
		return err
	}

	if err := s.Multiply("a", "b", "prod"); err != nil {
		return err
	}
	if err := printValue(s, "prod"); err != nil {
		return err
	}

	if err := s.Delete("a"); err != nil {
		return err
	}
	if err := printValue(s, "a"); err != nil {
		return err
	}

	if upper := s.Context().Domain().Max; upper < math.MaxUint64 {
		err := s.Put("out_of_range", upper+1)
		if !errors.Is(err, store.ErrValidation) {
			return fmt.Errorf("expected a validation error, got %v", err)
		}
		fmt.Printf("put out_of_range rejected: %v\n", err)
	}
	return nil
}

func printValue(s *store.Store, key string) error {
	value, found, err := s.Get(key)
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("get %s -> not found\n", key)
		return nil
	}
	fmt.Printf("get %s = %d\n", key, value)
	return nil
}
