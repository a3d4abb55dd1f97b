package core

import (
	"context"
	"sync"
	"time"

	"claimlink/core/events"
	"claimlink/observability"
	"claimlink/storage"
)

const subscriberBuffer = 64

// eventFeed journals committed events and fans them out to subscribers.
// Without a journal the history is kept in memory.
type eventFeed struct {
	journal *storage.EventLog

	mu      sync.Mutex
	history []storage.EventRecord
	subs    map[int]chan storage.EventRecord
	nextSub int
}

func newEventFeed(journal *storage.EventLog) *eventFeed {
	return &eventFeed{journal: journal, subs: make(map[int]chan storage.EventRecord)}
}

func toPending(emitted []events.Event) []storage.PendingEvent {
	pending := make([]storage.PendingEvent, 0, len(emitted))
	for _, evt := range emitted {
		typed, ok := evt.(events.Typed)
		if !ok {
			pending = append(pending, storage.PendingEvent{Type: evt.EventType(), Attributes: map[string]string{}})
			continue
		}
		wire := typed.Event()
		if wire == nil {
			continue
		}
		pending = append(pending, storage.PendingEvent{Type: wire.Type, Attributes: wire.Attributes})
	}
	return pending
}

func (f *eventFeed) append(ctx context.Context, emitted []events.Event, at time.Time) ([]storage.EventRecord, error) {
	pending := toPending(emitted)
	if len(pending) == 0 {
		return nil, nil
	}
	var (
		records []storage.EventRecord
		err     error
	)
	if f.journal != nil {
		records, err = f.journal.Append(ctx, pending, at)
		if err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.journal == nil {
		next := int64(len(f.history)) + 1
		at = at.UTC()
		for _, p := range pending {
			records = append(records, storage.EventRecord{Sequence: next, Type: p.Type, Attributes: p.Attributes, Timestamp: at})
			next++
		}
		f.history = append(f.history, records...)
	}
	for _, rec := range records {
		for _, ch := range f.subs {
			select {
			case ch <- rec:
			default:
				observability.ModuleMetrics().RecordThrottle("events", "subscriber_full")
			}
		}
	}
	return records, nil
}

func (f *eventFeed) list(ctx context.Context, after int64, limit int, eventType string) ([]storage.EventRecord, error) {
	if f.journal != nil {
		return f.journal.List(ctx, after, limit, eventType)
	}
	if limit <= 0 {
		limit = 100
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.EventRecord, 0)
	for _, rec := range f.history {
		if rec.Sequence <= after || (eventType != "" && rec.Type != eventType) {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *eventFeed) subscribe() (<-chan storage.EventRecord, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	ch := make(chan storage.EventRecord, subscriberBuffer)
	f.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (f *eventFeed) close() error {
	f.mu.Lock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
	f.mu.Unlock()
	if f.journal != nil {
		return f.journal.Close()
	}
	return nil
}

// Events pages through committed events with a sequence greater than after.
func (n *Node) Events(ctx context.Context, after int64, limit int, eventType string) ([]storage.EventRecord, error) {
	return n.feed.list(ctx, after, limit, eventType)
}

// Subscribe streams events committed after the call. Slow subscribers miss
// events rather than stall the node; they can catch up with Events. The
// returned cancel func must be called to release the subscription.
func (n *Node) Subscribe() (<-chan storage.EventRecord, func()) {
	return n.feed.subscribe()
}
