package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/config"
)

// Service wraps the shared NATS connection. All request-reply capabilities,
// the notification dispatch and the frame bridge ride on this one
// connection.
type Service struct {
	cfg  *config.Config
	conn *nats.Conn
}

func NewService(cfg *config.Config) (*Service, error) {
	opts := []nats.Option{
		nats.Name("visionpro-worker-" + cfg.WorkerID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NatsURL, err)
	}

	log.Info().Str("url", cfg.NatsURL).Msg("Connected to NATS")
	return &Service{cfg: cfg, conn: conn}, nil
}

// Publish sends a fire-and-forget message.
func (s *Service) Publish(subject string, data []byte) error {
	return s.conn.Publish(subject, data)
}

// PublishJSON marshals v and publishes it.
func (s *Service) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", subject, err)
	}
	return s.conn.Publish(subject, data)
}

// Request performs a request-reply round trip bounded by ctx.
func (s *Service) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := s.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return msg.Data, nil
}

// Subscribe registers a handler for a subject and returns the subscription.
func (s *Service) Subscribe(subject string, handler func(data []byte)) (*nats.Subscription, error) {
	sub, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Close drains the connection so in-flight messages are delivered before
// shutdown.
func (s *Service) Close() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("NATS drain failed")
	}
}
