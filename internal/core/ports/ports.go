package ports

import (
	"context"

	"github.com/kirillkom/extraction-tracker/internal/core/domain"
)

// EventSource opens one live lifecycle-event subscription for a resource.
// The returned channel carries decoded events in transport order and is
// closed when the stream ends for any reason: context cancellation, server
// close after a terminal event, or transport failure. The tracker decides
// whether a close is benign from its own state.
type EventSource interface {
	Open(ctx context.Context, ref domain.ResourceRef) (<-chan domain.StreamEvent, error)
}

// AbortClient requests server-side cancellation of a resource. The call is
// advisory: local cancellation state is applied before it is issued and is
// not reverted on failure.
type AbortClient interface {
	Abort(ctx context.Context, ownerID, resourceID string) error
}

// Notifier surfaces terminal outcomes to the user (toast equivalent).
// Fired at most once per resource per terminal event.
type Notifier interface {
	Success(resourceID, displayName, message string)
	Failure(resourceID, displayName, message string)
}

// ProgressTracker is the inbound port consumed by UI surfaces.
type ProgressTracker interface {
	// StartProcessing opens a subscription for the resource, tearing down any
	// existing one first. A starting/0% entry is visible before it returns.
	StartProcessing(ctx context.Context, ref domain.ResourceRef) bool

	// AbortProcessing applies local cancellation synchronously, then fires a
	// best-effort abort request whose outcome is only logged.
	AbortProcessing(ctx context.Context, ownerID, resourceID string) bool

	IsProcessing(resourceID string) bool
	GetProgress(resourceID string) (domain.ProcessingProgress, bool)
	Snapshot() domain.Snapshot

	// Subscribe registers a listener that receives the current snapshot
	// immediately and again after every store mutation. The returned
	// function unsubscribes and is safe to call more than once.
	Subscribe(listener func(domain.Snapshot)) func()

	// Cleanup tears down every subscription and clears all state.
	Cleanup()
}
