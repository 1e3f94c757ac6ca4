// Package refdata loads per-symbol reference data used to enrich venue
// messages.
package refdata

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// file is the on-disk shape: symbol -> FIX tag -> value.
type file struct {
	Symbols map[string]map[string]string `yaml:"symbols"`
}

// Store holds symbol reference data loaded at startup.
type Store struct {
	symbols map[string]map[string]string
}

// Load reads and validates a reference data file. Every key under a symbol
// must be a numeric FIX tag.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference data file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse reference data file: %w", err)
	}

	for symbol, fields := range f.Symbols {
		for tag := range fields {
			if _, err := strconv.Atoi(tag); err != nil {
				return nil, fmt.Errorf("symbol %s has non-numeric FIX tag %q", symbol, tag)
			}
		}
	}
	return &Store{symbols: f.Symbols}, nil
}

// Empty returns a store with no symbols.
func Empty() *Store {
	return &Store{symbols: make(map[string]map[string]string)}
}

// FIXFields returns the extra FIX fields for a symbol, or nil when the
// symbol is unknown.
func (s *Store) FIXFields(symbol string) map[string]string {
	return s.symbols[symbol]
}

// Symbols returns how many symbols are loaded.
func (s *Store) Symbols() int {
	return len(s.symbols)
}
