package notifications

import (
	"context"
	"errors"

	"agenda/pkg/logger"
)

var ErrNoRecipient = errors.New("event has no recipient")

// Sender renders an event and hands it to the mailer.
type Sender struct {
	renderer *Renderer
	mailer   Mailer
	log      *logger.Logger
}

func NewSender(renderer *Renderer, mailer Mailer, log *logger.Logger) *Sender {
	return &Sender{renderer: renderer, mailer: mailer, log: log}
}

func (s *Sender) Deliver(ctx context.Context, e Event) error {
	if e.CustomerEmail == "" {
		return ErrNoRecipient
	}

	mail, err := s.renderer.Render(e)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, mail); err != nil {
		return err
	}

	s.log.Info("notification delivered",
		"type", e.Type,
		"tenant_id", e.TenantID,
		"reservation_id", e.ReservationID,
	)
	return nil
}
