package pricing

import "math"

// Config holds the fare formula parameters. The quote is computed once at
// order creation and stored immutably on the order.
type Config struct {
	BaseFare    float64
	PerKmRate   float64
	MinimumFare float64
}

// Quote returns max(minimum, base + rate*distance) rounded to cents.
func (c Config) Quote(distanceKm float64) float64 {
	fare := c.BaseFare + c.PerKmRate*distanceKm
	if fare < c.MinimumFare {
		fare = c.MinimumFare
	}
	return roundCents(fare)
}

// Cents converts a quoted fare to an integer cent amount for payment holds.
func Cents(fare float64) int64 {
	return int64(math.Round(fare * 100))
}

// roundCents rounds half away from zero on the scaled cent value.
func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
