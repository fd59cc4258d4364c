package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/trade-ledger/internal/ledger"
)

// Seed is the YAML document used to preload a store.
type Seed struct {
	Orders   []ledger.Order   `yaml:"orders"`
	Costs    []ledger.Cost    `yaml:"costs"`
	Invoices []ledger.Invoice `yaml:"invoices"`
}

// SeedCounts reports how many entries of each kind were loaded.
type SeedCounts struct {
	Orders   int
	Costs    int
	Invoices int
}

// LoadSeed reads a YAML seed file from path and adds its entries to store.
func LoadSeed(store Storage, path string) (SeedCounts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedCounts{}, fmt.Errorf("read seed file: %w", err)
	}
	return ApplySeed(store, data)
}

// ApplySeed parses a YAML seed document and adds its entries to store.
// Invoices are added before orders so that orders settle against them. It
// stops at the first invalid entry.
func ApplySeed(store Storage, data []byte) (SeedCounts, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return SeedCounts{}, fmt.Errorf("parse seed YAML: %w", err)
	}

	var counts SeedCounts
	for i, c := range seed.Costs {
		if _, err := store.AddCost(c); err != nil {
			return counts, fmt.Errorf("seed cost %d: %w", i+1, err)
		}
		counts.Costs++
	}
	for i, inv := range seed.Invoices {
		if _, err := store.AddInvoice(inv); err != nil {
			return counts, fmt.Errorf("seed invoice %d: %w", i+1, err)
		}
		counts.Invoices++
	}
	for i, o := range seed.Orders {
		if _, err := store.AddOrder(o); err != nil {
			return counts, fmt.Errorf("seed order %d: %w", i+1, err)
		}
		counts.Orders++
	}
	return counts, nil
}
