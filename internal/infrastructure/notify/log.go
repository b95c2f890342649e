package notify

import "log/slog"

// LogNotifier is the default toast sink for headless deployments: terminal
// outcomes are written to the structured log. UI embedders provide their
// own ports.Notifier instead.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{log: logger.With("component", "notifier")}
}

func (n *LogNotifier) Success(resourceID, displayName, message string) {
	n.log.Info("processing completed",
		"resource_id", resourceID,
		"display_name", displayName,
		"message", message,
	)
}

func (n *LogNotifier) Failure(resourceID, displayName, message string) {
	n.log.Error("processing failed",
		"resource_id", resourceID,
		"display_name", displayName,
		"message", message,
	)
}
