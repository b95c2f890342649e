package tracker

import "github.com/kirillkom/extraction-tracker/internal/core/domain"

// fanout keeps registered snapshot listeners. Guarded by the Tracker mutex;
// callbacks are invoked after the mutex is released so listeners may call
// back into the tracker.
type fanout struct {
	listeners map[uint64]func(domain.Snapshot)
	nextID    uint64
}

func newFanout() *fanout {
	return &fanout{listeners: make(map[uint64]func(domain.Snapshot))}
}

func (f *fanout) add(listener func(domain.Snapshot)) uint64 {
	f.nextID++
	f.listeners[f.nextID] = listener
	return f.nextID
}

// remove is a no-op for unknown ids, which makes unsubscribe idempotent.
func (f *fanout) remove(id uint64) {
	delete(f.listeners, id)
}

func (f *fanout) callbacks() []func(domain.Snapshot) {
	if len(f.listeners) == 0 {
		return nil
	}
	out := make([]func(domain.Snapshot), 0, len(f.listeners))
	for _, listener := range f.listeners {
		out = append(out, listener)
	}
	return out
}
