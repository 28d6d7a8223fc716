package market

import (
	"testing"
	"time"
)

func mustTZ(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func TestCycleKey(t *testing.T) {
	london := mustTZ(t, "Europe/London")
	p := DefaultParams(london)

	cases := []struct {
		name string
		at   time.Time
		want string
	}{
		{"mid month", time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC), "2026-08"},
		// 23:30 UTC on July 31 is already August 1 in London (BST).
		{"dst boundary", time.Date(2026, 7, 31, 23, 30, 0, 0, time.UTC), "2026-08"},
		{"new year", time.Date(2026, 1, 1, 0, 0, 0, 0, london), "2026-01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.CycleKey(tc.at); got != tc.want {
				t.Fatalf("CycleKey(%v) = %q, want %q", tc.at, got, tc.want)
			}
		})
	}
}

func TestMonthBounds(t *testing.T) {
	london := mustTZ(t, "Europe/London")
	p := DefaultParams(london)

	at := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	start, end := p.monthBounds(at)

	wantStart := time.Date(2026, 8, 1, 0, 0, 0, 0, london).UTC()
	wantEnd := time.Date(2026, 9, 1, 0, 0, 0, 0, london).UTC()
	if !start.Equal(wantStart) {
		t.Fatalf("start = %v, want %v", start, wantStart)
	}
	if !end.Equal(wantEnd) {
		t.Fatalf("end = %v, want %v", end, wantEnd)
	}
	if start.Location() != time.UTC || end.Location() != time.UTC {
		t.Fatalf("bounds must be UTC-normalized, got %v / %v", start.Location(), end.Location())
	}
}

func TestMedianBets(t *testing.T) {
	cases := []struct {
		name   string
		counts []int
		want   int
	}{
		{"empty", nil, 0},
		{"single", []int{7}, 7},
		{"odd", []int{1, 1, 5, 5, 9}, 5},
		{"even truncates", []int{2, 3}, 2},
		{"even larger", []int{1, 2, 3, 10}, 2},
		{"unsorted input", []int{9, 1, 5}, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := medianBets(tc.counts); got != tc.want {
				t.Fatalf("medianBets(%v) = %d, want %d", tc.counts, got, tc.want)
			}
		})
	}
}

func TestSameTopUpDay(t *testing.T) {
	london := mustTZ(t, "Europe/London")
	p := DefaultParams(london)

	// 23:30 UTC and 00:30 UTC the next day are the same London day in
	// summer; midnight UTC is already past midnight local.
	a := time.Date(2026, 8, 10, 22, 0, 0, 0, time.UTC)
	b := time.Date(2026, 8, 10, 22, 59, 0, 0, time.UTC)
	c := time.Date(2026, 8, 10, 23, 30, 0, 0, time.UTC) // Aug 11 in London

	if !p.sameTopUpDay(a, b) {
		t.Fatal("same local day reported as different")
	}
	if p.sameTopUpDay(a, c) {
		t.Fatal("different local days reported as same")
	}
	if p.sameTopUpDay(time.Time{}, b) {
		t.Fatal("zero time must never match")
	}
}

func TestApplyTopUp(t *testing.T) {
	p := DefaultParams(time.UTC)
	now := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	a := &Account{Balance: 500}
	if !p.applyTopUp(a, now) {
		t.Fatal("first top-up of the day must apply")
	}
	if a.Balance != 700 {
		t.Fatalf("balance = %v, want 700", a.Balance)
	}
	if p.applyTopUp(a, now.Add(3*time.Hour)) {
		t.Fatal("second top-up the same day must be a no-op")
	}

	// Cap binds.
	b := &Account{Balance: 1900}
	p.applyTopUp(b, now)
	if b.Balance != 2000 {
		t.Fatalf("capped balance = %v, want 2000", b.Balance)
	}

	// At the cap nothing changes but the day still marks.
	c := &Account{Balance: 2000}
	if !p.applyTopUp(c, now) {
		t.Fatal("top-up at cap still counts as applied for the day")
	}
	if c.Balance != 2000 {
		t.Fatalf("balance = %v, want 2000", c.Balance)
	}
}
