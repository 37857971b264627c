package notifier

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/config"
)

// Publisher is the outbound transport for notifications. Satisfied by the
// messaging service.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type notification struct {
	Message   string    `json:"message"`
	ImagePath string    `json:"image_path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Service dispatches event notifications on a detached goroutine so a slow
// or failing notification channel never delays event creation.
type Service struct {
	pub     Publisher
	subject string
}

func NewService(cfg *config.Config, pub Publisher) *Service {
	return &Service{pub: pub, subject: cfg.NotifySubject}
}

// Dispatch publishes the notification and returns immediately. Failures are
// logged, never surfaced.
func (s *Service) Dispatch(message, imagePath string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Notification dispatch panicked")
			}
		}()

		payload, err := json.Marshal(notification{
			Message:   message,
			ImagePath: imagePath,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to encode notification")
			return
		}
		if err := s.pub.Publish(s.subject, payload); err != nil {
			log.Warn().Err(err).Str("subject", s.subject).Msg("Notification publish failed")
		}
	}()
}
