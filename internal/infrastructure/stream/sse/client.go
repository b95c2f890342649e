package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/extraction-tracker/internal/core/domain"
)

// Source opens Server-Sent-Events subscriptions against the processing
// backend, one stream per resource, and decodes the named lifecycle events
// (progress, completed, error, cancelled) into domain.StreamEvents.
type Source struct {
	streamURL  func(ownerID, resourceID string) string
	httpClient *http.Client
	log        *slog.Logger

	// parseErrLimit throttles malformed-payload logging so a misbehaving
	// backend cannot flood the log. Dropped events are still counted as
	// dropped either way.
	parseErrLimit *rate.Limiter
}

func New(streamURL func(ownerID, resourceID string) string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		streamURL: streamURL,
		// No overall timeout: the stream runs until a terminal event or
		// context cancellation. Dial/TLS still time out via the transport.
		httpClient:    &http.Client{},
		log:           logger.With("component", "sse-source"),
		parseErrLimit: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Open performs the network-level open and starts the read loop. The
// returned channel closes when the stream ends for any reason; per-event
// parse failures are logged and dropped without ending the stream.
func (s *Source) Open(ctx context.Context, ref domain.ResourceRef) (<-chan domain.StreamEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.streamURL(ref.OwnerID, ref.ResourceID), nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if ref.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ref.Token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			return nil, fmt.Errorf("open stream status: %s", resp.Status)
		}
		return nil, fmt.Errorf("open stream status: %s: %s", resp.Status, msg)
	}

	events := make(chan domain.StreamEvent)
	go s.readLoop(ctx, ref, resp.Body, events)
	return events, nil
}

func (s *Source) readLoop(ctx context.Context, ref domain.ResourceRef, body io.ReadCloser, events chan<- domain.StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 16*1024), 1024*1024)

	var eventName string
	var data strings.Builder

	flush := func() {
		defer func() {
			eventName = ""
			data.Reset()
		}()
		if data.Len() == 0 {
			return
		}
		event, err := domain.ParseStreamEvent(eventName, []byte(data.String()))
		if err != nil {
			if s.parseErrLimit.Allow() {
				s.log.Warn("dropping malformed stream event",
					"resource_id", ref.ResourceID,
					"event", eventName,
					"error", err,
				)
			}
			return
		}
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, ":") {
			// Comment line, typically a keep-alive.
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			field, value = line, ""
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventName = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Warn("stream read failed",
			"owner_id", ref.OwnerID,
			"resource_id", ref.ResourceID,
			"error", err,
		)
	}
}
