package pricing

import "testing"

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := New(map[int]int64{1: 2000, 2: 4000, 3: 6000, 4: 8000, 5: 10000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return table
}

func TestPriceTiers(t *testing.T) {
	table := defaultTable(t)

	for q, want := range map[int]int64{1: 2000, 2: 4000, 3: 6000, 4: 8000, 5: 10000} {
		got, err := table.Price(q)
		if err != nil {
			t.Fatalf("Price(%d): %v", q, err)
		}
		if got != want {
			t.Errorf("Price(%d) = %d, want %d", q, got, want)
		}
	}
}

func TestPriceLinearFallback(t *testing.T) {
	table := defaultTable(t)

	unit, _ := table.Price(1)
	for _, q := range []int{6, 7, 12, 100} {
		got, err := table.Price(q)
		if err != nil {
			t.Fatalf("Price(%d): %v", q, err)
		}
		if got != unit*int64(q) {
			t.Errorf("Price(%d) = %d, want %d", q, got, unit*int64(q))
		}
	}
}

func TestPriceTierIsAuthoritative(t *testing.T) {
	// A tier amount may differ from the linear multiple; the table wins.
	table, err := New(map[int]int64{1: 2000, 3: 5500})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := table.Price(3)
	if err != nil {
		t.Fatalf("Price(3): %v", err)
	}
	if got != 5500 {
		t.Errorf("Price(3) = %d, want 5500", got)
	}
}

func TestPriceInvalidQuantity(t *testing.T) {
	table := defaultTable(t)
	for _, q := range []int{0, -1} {
		if _, err := table.Price(q); err == nil {
			t.Errorf("Price(%d): expected error", q)
		}
	}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name  string
		tiers map[int]int64
	}{
		{"empty", nil},
		{"missing unit tier", map[int]int64{2: 4000}},
		{"zero quantity", map[int]int64{0: 100, 1: 2000}},
		{"negative amount", map[int]int64{1: -5}},
	}
	for _, tc := range cases {
		if _, err := New(tc.tiers); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestMaxTier(t *testing.T) {
	table := defaultTable(t)
	if table.MaxTier() != 5 {
		t.Errorf("MaxTier = %d, want 5", table.MaxTier())
	}
}
