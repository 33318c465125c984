package geo

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/models"
)

// Index supplies driver candidates near a pickup point for the matching
// helper. It carries positions only; availability is the registry's call.
type Index interface {
	Upsert(d models.DriverLocation)
	Candidates(ctx context.Context, lat, lon, radiusKm float64, limit int) []match.Candidate
}

// MemoryIndex is a naive in-process index. It returns every known position
// and leaves radius filtering and ranking to match.Rank; fine for a single
// node, use the Redis index beyond that.
type MemoryIndex struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverLocation
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{drivers: make(map[string]models.DriverLocation)}
}

func (g *MemoryIndex) Upsert(d models.DriverLocation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d.Updated = time.Now()
	g.drivers[d.ID] = d
}

func (g *MemoryIndex) Candidates(_ context.Context, _, _ float64, _ float64, _ int) []match.Candidate {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]match.Candidate, 0, len(g.drivers))
	for _, d := range g.drivers {
		out = append(out, match.Candidate{ID: d.ID, Lat: d.Lat, Lon: d.Lon})
	}
	return out
}
