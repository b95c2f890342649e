package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/extraction-tracker/internal/core/domain"
	"github.com/kirillkom/extraction-tracker/internal/core/ports"
)

// Tracker multiplexes live processing subscriptions for many resources,
// keeps the progress store current, and fans snapshots out to listeners.
// It is an explicitly constructed instance: one per application scope,
// injected into consumers, never a package-level singleton.
type Tracker struct {
	source  ports.EventSource
	backend ports.AbortClient

	notifier ports.Notifier
	metrics  Metrics
	log      *slog.Logger
	cfg      Config
	now      func() time.Time

	mu      sync.Mutex
	store   *store
	fanout  *fanout
	subs    map[string]*subscription
	removal map[string]*time.Timer
}

// subscription owns one live stream. Cancelling the context closes the
// underlying transport; done is closed when the consumer goroutine exits.
type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Options struct {
	Config   Config
	Notifier ports.Notifier
	Metrics  Metrics
	Logger   *slog.Logger
}

type nopNotifier struct{}

func (nopNotifier) Success(string, string, string) {}
func (nopNotifier) Failure(string, string, string) {}

func New(source ports.EventSource, backend ports.AbortClient, opts Options) *Tracker {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		source:   source,
		backend:  backend,
		notifier: notifier,
		metrics:  metrics,
		log:      logger.With("component", "progress-tracker"),
		cfg:      opts.Config.normalize(),
		now:      time.Now,
		store:    newStore(),
		fanout:   newFanout(),
		subs:     make(map[string]*subscription),
		removal:  make(map[string]*time.Timer),
	}
}

// StartProcessing opens a subscription for the resource. Any existing
// subscription for the same id is torn down first, so at most one is ever
// live per resource. The starting/0% entry is written and broadcast before
// the network open, so callers see immediate feedback.
func (t *Tracker) StartProcessing(ctx context.Context, ref domain.ResourceRef) bool {
	if ref.ResourceID == "" {
		return false
	}

	t.mu.Lock()
	old := t.detachSubscriptionLocked(ref.ResourceID)
	t.cancelRemovalLocked(ref.ResourceID)
	t.store.clearCompleted(ref.ResourceID)
	t.store.set(domain.ProcessingProgress{
		ResourceID:  ref.ResourceID,
		Stage:       domain.StageStarting,
		Progress:    0,
		Message:     "Preparing processing...",
		Timestamp:   t.now(),
		DisplayName: ref.DisplayName,
	})
	snap, listeners := t.broadcastLocked()
	t.mu.Unlock()

	if old != nil {
		old.cancel()
	}
	t.deliver(snap, listeners)

	// The subscription outlives the caller's context: it runs until a
	// terminal event, an abort, or Cleanup.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	events, err := t.source.Open(subCtx, ref)
	if err != nil {
		cancel()
		t.log.Error("open stream failed",
			"owner_id", ref.OwnerID,
			"resource_id", ref.ResourceID,
			"error", err,
		)
		t.failConnection(nil, ref.ResourceID, err.Error())
		return false
	}

	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	t.mu.Lock()
	t.subs[ref.ResourceID] = sub
	t.mu.Unlock()
	t.metrics.SubscriptionOpened()

	go t.consume(sub, ref, events)
	return true
}

// AbortProcessing applies the local cancellation phase synchronously (entry
// marked cancelled, subscription torn down, removal scheduled, snapshot
// broadcast) and then fires the advisory server-side abort in the
// background. The remote result never changes local state.
func (t *Tracker) AbortProcessing(ctx context.Context, ownerID, resourceID string) bool {
	if resourceID == "" {
		return false
	}

	t.mu.Lock()
	if entry, ok := t.store.get(resourceID); ok {
		entry.Stage = domain.StageCancelled
		entry.Message = "Processing cancelled"
		entry.Timestamp = t.now()
		t.store.set(entry)
	}
	t.store.markCompleted(resourceID)
	sub := t.detachSubscriptionLocked(resourceID)
	t.scheduleRemovalLocked(resourceID, t.cfg.CancelledGrace)
	snap, listeners := t.broadcastLocked()
	t.mu.Unlock()

	if sub != nil {
		sub.cancel()
	}
	t.deliver(snap, listeners)

	abortCtx := context.WithoutCancel(ctx)
	go func() {
		reqCtx, cancelReq := context.WithTimeout(abortCtx, t.cfg.AbortTimeout)
		defer cancelReq()
		if err := t.backend.Abort(reqCtx, ownerID, resourceID); err != nil {
			t.log.Warn("abort request failed",
				"owner_id", ownerID,
				"resource_id", resourceID,
				"error", err,
			)
		}
	}()
	return true
}

func (t *Tracker) IsProcessing(resourceID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.store.get(resourceID)
	return ok && !entry.Stage.Terminal()
}

func (t *Tracker) GetProgress(resourceID string) (domain.ProcessingProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.get(resourceID)
}

func (t *Tracker) Snapshot() domain.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.snapshot()
}

// Subscribe registers a listener, invokes it immediately with the current
// snapshot, and returns an idempotent unsubscribe function.
func (t *Tracker) Subscribe(listener func(domain.Snapshot)) func() {
	t.mu.Lock()
	id := t.fanout.add(listener)
	snap := t.store.snapshot()
	t.mu.Unlock()

	listener(snap)

	return func() {
		t.mu.Lock()
		t.fanout.remove(id)
		t.mu.Unlock()
	}
}

// Cleanup tears down every subscription and clears all state. Listeners
// stay registered and receive one empty snapshot.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	t.subs = make(map[string]*subscription)
	for id, timer := range t.removal {
		timer.Stop()
		delete(t.removal, id)
	}
	t.store.clear()
	snap, listeners := t.broadcastLocked()
	t.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		t.metrics.SubscriptionClosed()
	}
	t.deliver(snap, listeners)
}

// SweepOnce removes terminal entries whose event timestamp is older than
// the cutoff, tearing down any lingering subscription. Safety net for
// entries whose removal timers were lost; normally the per-event grace
// timers evict first.
func (t *Tracker) SweepOnce(now time.Time) int {
	t.mu.Lock()
	var stale []string
	for id, entry := range t.store.entries {
		if entry.Stage.Terminal() && now.Sub(entry.Timestamp) > t.cfg.SweepCutoff {
			stale = append(stale, id)
		}
	}
	subs := make([]*subscription, 0, len(stale))
	for _, id := range stale {
		t.cancelRemovalLocked(id)
		if sub := t.detachSubscriptionLocked(id); sub != nil {
			subs = append(subs, sub)
		}
		t.store.remove(id)
	}
	var snap domain.Snapshot
	var listeners []func(domain.Snapshot)
	if len(stale) > 0 {
		snap, listeners = t.broadcastLocked()
	}
	t.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		t.metrics.SubscriptionClosed()
	}
	if len(stale) > 0 {
		t.metrics.SweepEvicted(len(stale))
		t.log.Info("swept stale entries", "count", len(stale))
		t.deliver(snap, listeners)
	}
	return len(stale)
}

// consume applies events from one subscription until a terminal event or
// stream close. A terminal event ends the loop; the close that follows is
// then benign by construction.
func (t *Tracker) consume(sub *subscription, ref domain.ResourceRef, events <-chan domain.StreamEvent) {
	defer close(sub.done)

	for event := range events {
		t.metrics.EventReceived(string(event.Type))
		switch event.Type {
		case domain.EventProgress:
			t.applyProgress(sub, ref, event)
		case domain.EventCompleted, domain.EventError, domain.EventCancelled:
			t.applyTerminal(sub, ref, event)
			sub.cancel()
			return
		}
	}

	t.handleStreamClosed(sub, ref)
}

func (t *Tracker) applyProgress(sub *subscription, ref domain.ResourceRef, event domain.StreamEvent) {
	t.mu.Lock()
	if t.subs[ref.ResourceID] != sub {
		t.mu.Unlock()
		return
	}
	entry, ok := t.store.get(ref.ResourceID)
	if ok && entry.Stage.Terminal() {
		// Once terminal, this subscription applies no further updates.
		t.mu.Unlock()
		return
	}
	if !ok {
		entry = domain.ProcessingProgress{ResourceID: ref.ResourceID, DisplayName: ref.DisplayName}
	}
	entry.Stage = event.Stage
	entry.Progress = event.Progress
	entry.Message = event.Message
	entry.Timestamp = event.Timestamp
	if event.Results != nil {
		entry.Results = event.Results
	}
	t.store.set(entry)
	snap, listeners := t.broadcastLocked()
	t.mu.Unlock()

	t.deliver(snap, listeners)
}

func (t *Tracker) applyTerminal(sub *subscription, ref domain.ResourceRef, event domain.StreamEvent) {
	t.mu.Lock()
	if t.subs[ref.ResourceID] != sub {
		t.mu.Unlock()
		return
	}
	delete(t.subs, ref.ResourceID)

	entry, ok := t.store.get(ref.ResourceID)
	if !ok {
		entry = domain.ProcessingProgress{ResourceID: ref.ResourceID, DisplayName: ref.DisplayName}
	}
	entry.Stage = event.Stage
	entry.Message = event.Message
	entry.Timestamp = event.Timestamp

	var grace time.Duration
	switch event.Type {
	case domain.EventCompleted:
		entry.Progress = 100
		entry.Results = event.Results
		t.store.markCompleted(ref.ResourceID)
		grace = t.cfg.CompletedGrace
	case domain.EventError:
		entry.Error = event.Error
		grace = t.cfg.ErrorGrace
	case domain.EventCancelled:
		grace = t.cfg.CancelledGrace
	}
	t.store.set(entry)
	t.scheduleRemovalLocked(ref.ResourceID, grace)
	snap, listeners := t.broadcastLocked()
	t.mu.Unlock()

	t.metrics.SubscriptionClosed()
	t.metrics.TerminalOutcome(string(event.Stage))

	displayName := entry.DisplayName
	switch event.Type {
	case domain.EventCompleted:
		message := event.Message
		if message == "" {
			message = "Processing completed"
		}
		t.notifier.Success(ref.ResourceID, displayName, message)
	case domain.EventError:
		t.notifier.Failure(ref.ResourceID, displayName, event.Error)
	}

	t.deliver(snap, listeners)
}

// handleStreamClosed runs when the event channel closes without a terminal
// event. If the resource already completed, aborted, or reached a terminal
// stage, the close is benign; otherwise it is an unexpected disconnect.
func (t *Tracker) handleStreamClosed(sub *subscription, ref domain.ResourceRef) {
	t.mu.Lock()
	if t.subs[ref.ResourceID] != sub {
		// Superseded by a newer subscription; nothing to report.
		t.mu.Unlock()
		return
	}
	delete(t.subs, ref.ResourceID)

	entry, ok := t.store.get(ref.ResourceID)
	benign := t.store.isCompleted(ref.ResourceID) || !ok || entry.Stage.Terminal()
	if benign {
		t.mu.Unlock()
		t.metrics.SubscriptionClosed()
		return
	}

	entry.Stage = domain.StageError
	entry.Message = "Connection error"
	entry.Error = "stream closed unexpectedly"
	entry.Timestamp = t.now()
	t.store.set(entry)
	snap, listeners := t.broadcastLocked()
	t.mu.Unlock()

	t.metrics.SubscriptionClosed()
	t.metrics.TerminalOutcome(string(domain.StageError))
	t.log.Warn("stream closed unexpectedly",
		"owner_id", ref.OwnerID,
		"resource_id", ref.ResourceID,
	)
	t.deliver(snap, listeners)
}

// failConnection records an open failure as a terminal error entry unless
// the resource already reached a terminal stage.
func (t *Tracker) failConnection(sub *subscription, resourceID, detail string) {
	t.mu.Lock()
	if sub != nil && t.subs[resourceID] != sub {
		t.mu.Unlock()
		return
	}
	entry, ok := t.store.get(resourceID)
	if !ok || entry.Stage.Terminal() {
		t.mu.Unlock()
		return
	}
	entry.Stage = domain.StageError
	entry.Message = "Connection error"
	entry.Error = detail
	entry.Timestamp = t.now()
	t.store.set(entry)
	t.scheduleRemovalLocked(resourceID, t.cfg.ErrorGrace)
	snap, listeners := t.broadcastLocked()
	t.mu.Unlock()

	t.metrics.TerminalOutcome(string(domain.StageError))
	t.deliver(snap, listeners)
}

// remove evicts one entry, firing fan-out only if it existed.
func (t *Tracker) remove(resourceID string) {
	t.mu.Lock()
	t.cancelRemovalLocked(resourceID)
	sub := t.detachSubscriptionLocked(resourceID)
	existed := t.store.remove(resourceID)
	var snap domain.Snapshot
	var listeners []func(domain.Snapshot)
	if existed {
		snap, listeners = t.broadcastLocked()
	}
	t.mu.Unlock()

	if sub != nil {
		sub.cancel()
		t.metrics.SubscriptionClosed()
	}
	if existed {
		t.deliver(snap, listeners)
	}
}

func (t *Tracker) detachSubscriptionLocked(resourceID string) *subscription {
	sub, ok := t.subs[resourceID]
	if !ok {
		return nil
	}
	delete(t.subs, resourceID)
	return sub
}

// scheduleRemovalLocked replaces any pending removal timer for the
// resource, so a newer terminal event supersedes an older scheduled
// eviction.
func (t *Tracker) scheduleRemovalLocked(resourceID string, grace time.Duration) {
	if timer, ok := t.removal[resourceID]; ok {
		timer.Stop()
	}
	t.removal[resourceID] = time.AfterFunc(grace, func() {
		t.remove(resourceID)
	})
}

func (t *Tracker) cancelRemovalLocked(resourceID string) {
	if timer, ok := t.removal[resourceID]; ok {
		timer.Stop()
		delete(t.removal, resourceID)
	}
}

func (t *Tracker) broadcastLocked() (domain.Snapshot, []func(domain.Snapshot)) {
	return t.store.snapshot(), t.fanout.callbacks()
}

// deliver runs outside the tracker mutex: listeners observe a consistent
// snapshot and may call back into the tracker without deadlocking.
func (t *Tracker) deliver(snap domain.Snapshot, listeners []func(domain.Snapshot)) {
	for _, listener := range listeners {
		listener(snap)
	}
}
