package natsstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/extraction-tracker/internal/core/domain"
)

// Source subscribes to per-resource lifecycle events published on NATS
// subjects instead of SSE. Deployments that already run the processing
// pipeline behind a broker use this transport; the tracker core cannot tell
// the difference.
//
// Subject layout: {prefix}.{ownerID}.{resourceID}. Message payload:
//
//	{"event":"progress","data":{...same fields as the SSE payload...}}
type Source struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

func Connect(url, prefix string, options Options, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "nats-source")

	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("extraction-tracker"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Source{conn: conn, prefix: prefix, log: log}, nil
}

func (s *Source) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Source) Open(ctx context.Context, ref domain.ResourceRef) (<-chan domain.StreamEvent, error) {
	subject := fmt.Sprintf("%s.%s.%s", s.prefix, ref.OwnerID, ref.ResourceID)

	inbox := make(chan *nats.Msg, 64)
	sub, err := s.conn.ChanSubscribe(subject, inbox)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	events := make(chan domain.StreamEvent)
	go func() {
		defer close(events)
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				s.log.Warn("nats unsubscribe failed", "subject", subject, "error", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-inbox:
				if !ok {
					return
				}
				event, err := decodeMessage(msg.Data)
				if err != nil {
					s.log.Warn("dropping malformed nats event",
						"subject", subject,
						"error", err,
					)
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func decodeMessage(payload []byte) (domain.StreamEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return domain.StreamEvent{}, fmt.Errorf("decode event envelope: %w", err)
	}
	data := env.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	return domain.ParseStreamEvent(env.Event, data)
}
