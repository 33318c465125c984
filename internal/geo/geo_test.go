package geo

import (
	"context"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func TestMemoryIndexUpsertReplaces(t *testing.T) {
	g := NewMemoryIndex()
	g.Upsert(models.DriverLocation{ID: "d1", Lat: 1, Lon: 1})
	g.Upsert(models.DriverLocation{ID: "d1", Lat: 2, Lon: 2})
	cands := g.Candidates(context.Background(), 0, 0, 0, 0)
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].Lat != 2 || cands[0].Lon != 2 {
		t.Fatalf("upsert did not replace position: %+v", cands[0])
	}
}
