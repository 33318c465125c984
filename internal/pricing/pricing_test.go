package pricing

import "testing"

func TestQuoteMinimumFloor(t *testing.T) {
	c := Config{BaseFare: 1.0, PerKmRate: 0.5, MinimumFare: 3.0}
	if got := c.Quote(0); got != 3.0 {
		t.Fatalf("expected minimum fare 3.0, got %f", got)
	}
	if got := c.Quote(1); got != 3.0 {
		t.Fatalf("expected minimum fare for short trip, got %f", got)
	}
}

func TestQuoteAboveMinimum(t *testing.T) {
	c := Config{BaseFare: 1.0, PerKmRate: 0.5, MinimumFare: 3.0}
	if got := c.Quote(10); got != 6.0 {
		t.Fatalf("expected 6.0, got %f", got)
	}
}

func TestQuoteRoundsHalfAwayFromZero(t *testing.T) {
	c := Config{BaseFare: 0, PerKmRate: 1, MinimumFare: 0}
	// 2.345 scales to 234.5 cents, which must round up to 235.
	if got := c.Quote(2.345); got != 2.35 {
		t.Fatalf("expected 2.35, got %f", got)
	}
}

func TestQuoteNonDecreasing(t *testing.T) {
	c := Config{BaseFare: 2.0, PerKmRate: 0.75, MinimumFare: 4.0}
	prev := 0.0
	for km := 0.0; km <= 50; km += 0.5 {
		got := c.Quote(km)
		if got < prev {
			t.Fatalf("quote decreased at %f km: %f < %f", km, got, prev)
		}
		if got < c.MinimumFare {
			t.Fatalf("quote below minimum at %f km: %f", km, got)
		}
		prev = got
	}
}

func TestCents(t *testing.T) {
	if got := Cents(6.35); got != 635 {
		t.Fatalf("expected 635 cents, got %d", got)
	}
}
