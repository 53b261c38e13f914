// Package shipping computes the shipping fee charged at checkout from a
// YAML-configured zone table.
package shipping

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type feeFile struct {
	DefaultFee   int64            `yaml:"default_fee"`
	FreeOver     int64            `yaml:"free_over"`
	RegionalFees map[string]int64 `yaml:"regions"`
}

type FeeTable struct {
	defaultFee decimal.Decimal
	freeOver   decimal.Decimal
	regions    map[string]decimal.Decimal
}

// LoadFeeTable reads the fee table from a YAML file. Amounts in the file are
// whole currency units.
func LoadFeeTable(path string) (*FeeTable, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shipping fee file: %w", err)
	}
	return ParseFeeTable(content)
}

func ParseFeeTable(content []byte) (*FeeTable, error) {
	var parsed feeFile
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse shipping fee table: %w", err)
	}
	if parsed.DefaultFee < 0 {
		return nil, fmt.Errorf("default_fee must not be negative")
	}

	table := &FeeTable{
		defaultFee: decimal.NewFromInt(parsed.DefaultFee),
		freeOver:   decimal.NewFromInt(parsed.FreeOver),
		regions:    make(map[string]decimal.Decimal, len(parsed.RegionalFees)),
	}
	for region, fee := range parsed.RegionalFees {
		if fee < 0 {
			return nil, fmt.Errorf("region %q has a negative fee", region)
		}
		table.regions[normalizeRegion(region)] = decimal.NewFromInt(fee)
	}
	return table, nil
}

// FeeFor returns the shipping fee for a destination region at a given cart
// subtotal. Orders at or above the free-shipping threshold ship free.
func (t *FeeTable) FeeFor(region string, subtotal decimal.Decimal) decimal.Decimal {
	if t.freeOver.IsPositive() && subtotal.GreaterThanOrEqual(t.freeOver) {
		return decimal.Zero
	}
	if fee, ok := t.regions[normalizeRegion(region)]; ok {
		return fee
	}
	return t.defaultFee
}

func normalizeRegion(region string) string {
	return strings.ToLower(strings.TrimSpace(region))
}
