package match

import (
	"math"
	"sort"
)

// Candidate is an (identity, location) pair offered to the ranking helper.
type Candidate struct {
	ID  string
	Lat float64
	Lon float64
}

// Ranked is a candidate annotated with its great-circle distance to the
// reference point.
type Ranked struct {
	Candidate
	DistanceKm float64
}

// HaversineKm returns the great-circle distance between two points in
// kilometers using the mean Earth radius.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Rank filters cands to radiusKm around the reference point and returns them
// sorted ascending by distance, ties broken by id ascending. A radius <= 0
// disables the filter; max <= 0 disables truncation. Rank never mutates its
// input and is safe for concurrent use.
func Rank(lat, lon float64, cands []Candidate, radiusKm float64, max int) []Ranked {
	out := make([]Ranked, 0, len(cands))
	for _, c := range cands {
		d := HaversineKm(lat, lon, c.Lat, c.Lon)
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		out = append(out, Ranked{Candidate: c, DistanceKm: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].ID < out[j].ID
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
