package docstore

import (
	"context"
	"strings"
	"sync"
)

type EventKind int

const (
	EventCreate EventKind = iota
	EventUpdate
	EventDelete
)

// Event describes one committed document write, with before/after snapshots.
type Event struct {
	Kind       EventKind
	Collection string
	ID         string
	// Params holds the path parameters extracted from the trigger pattern,
	// e.g. {"userId": "u1"} for pattern "users/{userId}". Empty for watch
	// events.
	Params map[string]string
	Before *Snapshot
	After  *Snapshot
}

// TriggerHandler runs after a matching write commits. Handlers own their
// error policy: failures are logged by the handler and never abort the
// write that fired them.
type TriggerHandler func(ctx context.Context, ev Event)

type binding struct {
	collection string
	param      string
	updateOnly bool
	handler    TriggerHandler
}

// parsePattern splits a "users/{userId}" trigger pattern.
func parsePattern(pattern string) (collection, param string) {
	parts := strings.SplitN(pattern, "/", 2)
	collection = parts[0]
	if len(parts) == 2 {
		param = strings.Trim(parts[1], "{}")
	}
	return collection, param
}

type watcher struct {
	collection string
	id         string
	ch         chan Event
}

// dispatcher fans committed write events out to registered triggers and
// watchers. Trigger handlers run synchronously in commit order; a handler
// that writes back to the store re-enters dispatch, so handlers must be
// idempotent (write only when something changed) to terminate.
type dispatcher struct {
	mu       sync.RWMutex
	bindings []binding
	watchers map[*watcher]struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{watchers: map[*watcher]struct{}{}}
}

func (d *dispatcher) onWrite(pattern string, updateOnly bool, h TriggerHandler) {
	coll, param := parsePattern(pattern)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings = append(d.bindings, binding{
		collection: coll,
		param:      param,
		updateOnly: updateOnly,
		handler:    h,
	})
}

func (d *dispatcher) watch(collection, id string) (<-chan Event, func()) {
	w := &watcher{collection: collection, id: id, ch: make(chan Event, 16)}
	d.mu.Lock()
	d.watchers[w] = struct{}{}
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		if _, ok := d.watchers[w]; ok {
			delete(d.watchers, w)
			close(w.ch)
		}
		d.mu.Unlock()
	}
	return w.ch, cancel
}

func (d *dispatcher) dispatch(ctx context.Context, events []Event) {
	d.mu.RLock()
	bindings := make([]binding, len(d.bindings))
	copy(bindings, d.bindings)
	d.mu.RUnlock()

	for _, ev := range events {
		for _, b := range bindings {
			if b.collection != ev.Collection {
				continue
			}
			if b.updateOnly && ev.Kind != EventUpdate {
				continue
			}
			bound := ev
			if b.param != "" {
				bound.Params = map[string]string{b.param: ev.ID}
			}
			b.handler(ctx, bound)
		}
		// Sends happen under the read lock so cancel cannot close a
		// channel mid-send.
		d.mu.RLock()
		for w := range d.watchers {
			if w.collection != ev.Collection || (w.id != "" && w.id != ev.ID) {
				continue
			}
			select {
			case w.ch <- ev:
			default:
				// Slow consumer: drop rather than stall commits.
			}
		}
		d.mu.RUnlock()
	}
}
