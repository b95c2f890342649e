package tracker

// Metrics receives tracker lifecycle counters. The observability package
// provides a Prometheus-backed implementation; a no-op is used when none is
// injected.
type Metrics interface {
	SubscriptionOpened()
	SubscriptionClosed()
	EventReceived(eventType string)
	TerminalOutcome(stage string)
	SweepEvicted(count int)
}

type nopMetrics struct{}

func (nopMetrics) SubscriptionOpened()    {}
func (nopMetrics) SubscriptionClosed()    {}
func (nopMetrics) EventReceived(string)   {}
func (nopMetrics) TerminalOutcome(string) {}
func (nopMetrics) SweepEvicted(int)       {}
