package leads

import (
	"context"

	"github.com/sourcegraph/conc"

	"github.com/conneroisu/brokerage/internal/logging"
)

// Meta is request information recorded with a lead.
type Meta struct {
	ClientIP  string
	UserAgent string
}

// Service accepts validated submissions: it stores them and sends the
// notification email in the background.
type Service struct {
	store  Store
	mailer Mailer
	from   string
	to     string
	logger logging.Logger

	notifications conc.WaitGroup
}

// NewService wires a store and mailer. Notifications go from -> to.
func NewService(store Store, mailer Mailer, from, to string, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Service{
		store:  store,
		mailer: mailer,
		from:   from,
		to:     to,
		logger: logger.WithComponent("leads"),
	}
}

// Submit stores a lead for formID and queues its notification. A failed
// notification is logged; the lead is already saved.
func (s *Service) Submit(ctx context.Context, formID, formTitle string, fields map[string]string, meta Meta) (*Lead, error) {
	lead := New(formID, fields, meta.ClientIP, meta.UserAgent)
	if err := s.store.Save(ctx, lead); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "lead received", "lead_id", lead.ID, "form", formID)

	if s.mailer != nil {
		msg := Notification(lead, formTitle, s.from, s.to)
		mailCtx := context.WithoutCancel(ctx)
		s.notifications.Go(func() {
			if err := s.mailer.Send(mailCtx, msg); err != nil {
				s.logger.Error(mailCtx, err, "sending lead notification", "lead_id", lead.ID)
			}
		})
	}

	return lead, nil
}

// Recent returns up to limit of the newest leads.
func (s *Service) Recent(ctx context.Context, limit int) ([]*Lead, error) {
	return s.store.List(ctx, limit)
}

// Wait blocks until queued notifications have been sent.
func (s *Service) Wait() {
	s.notifications.Wait()
}
