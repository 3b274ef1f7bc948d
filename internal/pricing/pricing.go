// Package pricing implements the quantity price table for the shop.
//
// Tiers are authoritative within their range: a multi-unit tier may price
// differently than the matching multiple of the 1-unit tier. Quantities above
// the highest tier fall back to unitPrice * quantity, where unitPrice is the
// 1-unit tier amount.
package pricing

import (
	"fmt"
	"sort"
)

// Table resolves a quantity to a total amount in minor currency units.
type Table struct {
	tiers map[int]int64
	unit  int64
	max   int
}

// New builds a Table from tier amounts keyed by quantity.
// A 1-unit tier is required since it anchors the linear fallback.
func New(tiers map[int]int64) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("pricing: empty tier table")
	}
	unit, ok := tiers[1]
	if !ok {
		return nil, fmt.Errorf("pricing: 1-unit tier is required")
	}
	max := 0
	copied := make(map[int]int64, len(tiers))
	for q, amount := range tiers {
		if q < 1 {
			return nil, fmt.Errorf("pricing: invalid tier quantity %d", q)
		}
		if amount <= 0 {
			return nil, fmt.Errorf("pricing: invalid tier amount %d for quantity %d", amount, q)
		}
		copied[q] = amount
		if q > max {
			max = q
		}
	}
	return &Table{tiers: copied, unit: unit, max: max}, nil
}

// Price returns the total amount for the given quantity.
func (t *Table) Price(quantity int) (int64, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("pricing: invalid quantity %d", quantity)
	}
	if amount, ok := t.tiers[quantity]; ok {
		return amount, nil
	}
	return t.unit * int64(quantity), nil
}

// MaxTier returns the highest quantity present in the tier table.
func (t *Table) MaxTier() int {
	return t.max
}

// Tiers returns the configured tier quantities in ascending order.
func (t *Table) Tiers() []int {
	out := make([]int, 0, len(t.tiers))
	for q := range t.tiers {
		out = append(out, q)
	}
	sort.Ints(out)
	return out
}
