package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/models"
)

type fakeChannel struct {
	mu   sync.Mutex
	evs  []events.Event
	fail bool
}

func (c *fakeChannel) Send(ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("channel closed")
	}
	c.evs = append(c.evs, ev)
	return nil
}

func TestRegisterUnregisterBalance(t *testing.T) {
	r := NewRegistry()
	chans := []*fakeChannel{{}, {}, {}}
	for _, ch := range chans {
		r.Register("p1", models.RolePassenger, ch)
	}
	if got := len(r.Channels("p1")); got != 3 {
		t.Fatalf("expected 3 channels, got %d", got)
	}
	for _, ch := range chans {
		r.Unregister("p1", ch)
	}
	if r.Connected("p1") {
		t.Fatal("entry should be pruned when channel set empties")
	}
	if got := r.Channels("p1"); got != nil {
		t.Fatalf("expected no channels, got %d", len(got))
	}
}

func TestUnregisterUnknownIdentityIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Unregister("ghost", &fakeChannel{})
}

func TestAvailabilityRequiresBothFlags(t *testing.T) {
	r := NewRegistry()
	r.SetOnline("d1", true)
	if ids := r.AvailableDrivers(); len(ids) != 0 {
		t.Fatalf("online but unapproved driver must not be available: %v", ids)
	}
	r.SetApproved("d1", true)
	if ids := r.AvailableDrivers(); len(ids) != 1 || ids[0] != "d1" {
		t.Fatalf("expected [d1], got %v", ids)
	}
	r.SetOnline("d1", false)
	if ids := r.AvailableDrivers(); len(ids) != 0 {
		t.Fatalf("offline driver must not be available: %v", ids)
	}
}

func TestAvailabilitySurvivesDisconnect(t *testing.T) {
	r := NewRegistry()
	ch := &fakeChannel{}
	r.Register("d1", models.RoleDriver, ch)
	r.SetOnline("d1", true)
	r.SetApproved("d1", true)

	// Silent disconnect: the channel goes away, the explicit flags do not.
	r.Unregister("d1", ch)
	if online, approved := r.Available("d1"); !online || !approved {
		t.Fatal("availability must survive channel loss until explicit offline")
	}
	if ids := r.AvailableDrivers(); len(ids) != 1 {
		t.Fatalf("expected d1 still available, got %v", ids)
	}
}

func TestAvailableDriversSorted(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"d3", "d1", "d2"} {
		r.SetOnline(id, true)
		r.SetApproved(id, true)
	}
	ids := r.AvailableDrivers()
	if len(ids) != 3 || ids[0] != "d1" || ids[1] != "d2" || ids[2] != "d3" {
		t.Fatalf("expected sorted ids, got %v", ids)
	}
}

func TestConcurrentMutationDuringSnapshot(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("d%d", i%4)
			for j := 0; j < 200; j++ {
				ch := &fakeChannel{}
				r.Register(id, models.RoleDriver, ch)
				r.SetOnline(id, j%2 == 0)
				r.SetApproved(id, true)
				for _, c := range r.Channels(id) {
					_ = c.Send(events.Hello(id, models.RoleDriver))
				}
				r.AvailableDrivers()
				r.Unregister(id, ch)
			}
		}(i)
	}
	wg.Wait()
}
