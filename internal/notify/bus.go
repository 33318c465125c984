package notify

import (
	"log/slog"

	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
)

// Bus delivers domain events to the registry's channel sets. Delivery is
// best-effort: an identity without a live channel loses the event, a failed
// channel write never blocks delivery to other channels, and no error ever
// reaches the caller that triggered the event.
type Bus struct {
	Registry *presence.Registry
	Journal  *Journal // optional event journal
	Log      *slog.Logger
}

func NewBus(reg *presence.Registry, journal *Journal, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{Registry: reg, Journal: journal, Log: log}
}

// Notify delivers ev to every channel currently registered for identity.
func (b *Bus) Notify(identity string, ev events.Event) {
	b.journal(ev)
	chans := b.Registry.Channels(identity)
	if len(chans) == 0 {
		observability.EventsDroppedTotal.Inc()
		b.Log.Debug("event dropped, identity offline", "identity", identity, "event", string(ev.Type))
		return
	}
	b.send(identity, chans, ev)
}

// Broadcast delivers ev to every driver available for offers at the instant
// of the call.
func (b *Bus) Broadcast(ev events.Event) {
	b.journal(ev)
	for _, id := range b.Registry.AvailableDrivers() {
		b.send(id, b.Registry.Channels(id), ev)
	}
}

// BroadcastTo delivers ev to the given drivers, skipping any that are no
// longer available. Used when the matching helper has narrowed the pool.
func (b *Bus) BroadcastTo(driverIDs []string, ev events.Event) {
	b.journal(ev)
	for _, id := range driverIDs {
		online, approved := b.Registry.Available(id)
		if !online || !approved {
			continue
		}
		b.send(id, b.Registry.Channels(id), ev)
	}
}

func (b *Bus) send(identity string, chans []presence.Channel, ev events.Event) {
	for _, ch := range chans {
		if err := ch.Send(ev); err != nil {
			observability.EventsDroppedTotal.Inc()
			b.Log.Warn("channel send failed", "identity", identity, "event", string(ev.Type), "error", err)
			continue
		}
		observability.EventsDeliveredTotal.Inc()
	}
}

func (b *Bus) journal(ev events.Event) {
	if b.Journal == nil {
		return
	}
	if err := b.Journal.Append(ev); err != nil {
		b.Log.Warn("event journal append failed", "event", string(ev.Type), "error", err)
	}
}
