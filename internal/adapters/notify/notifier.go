// Package notify sends the guest confirmation and the organizer notice for
// each committed RSVP.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/rsvp/internal/domain/dedupe"
	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
	"github.com/okian/rsvp/pkg/metrics"
)

// Recipient kinds used in metrics and logs.
const (
	KindGuest = "guest"
	KindAdmin = "admin"
)

// Notifier composes and sends both emails for one guest.
type Notifier struct {
	composer *Composer
	sender   Sender
	deduper  dedupe.Deduper
	from     string
	admins   []string
	logger   logger.Logger
}

// Option applies a configuration option to the Notifier.
type Option func(*Notifier)

// WithAdmins sets the organizer addresses. No admin mail is sent without them.
func WithAdmins(addrs []string) Option {
	return func(n *Notifier) {
		n.admins = n.admins[:0]
		for _, a := range addrs {
			if a = strings.TrimSpace(a); a != "" {
				n.admins = append(n.admins, a)
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(n *Notifier) {
		if log != nil {
			n.logger = log
		}
	}
}

// WithDeduper overrides the default in-memory deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(n *Notifier) {
		if d != nil {
			n.deduper = d
		}
	}
}

// New builds a Notifier.
func New(composer *Composer, sender Sender, from string, opts ...Option) (*Notifier, error) {
	if composer == nil || sender == nil {
		return nil, fmt.Errorf("%w: composer and sender are required", ErrConfig)
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("%w: from address is empty", ErrConfig)
	}
	n := &Notifier{composer: composer, sender: sender, from: from}
	for _, opt := range opts {
		opt(n)
	}
	if n.deduper == nil {
		n.deduper = dedupe.NewInMemoryDeduper()
	}
	if n.logger == nil {
		n.logger = logger.Get().Named("notify")
	}
	return n, nil
}

// Notify sends the emails for job unless this RSVP was already handled. When
// every attempted send fails the RSVP is forgotten again so a later job for
// it is not suppressed.
func (n *Notifier) Notify(ctx context.Context, job model.Notification) error { //nolint:gocritic // hugeParam: jobs travel by value
	g := job.Guest

	seen, err := n.deduper.SeenAndRecord(ctx, g.Key())
	if err != nil {
		// an unavailable dedupe backend must not stop delivery
		metrics.RecordErrorByComponent("notify", "dedupe_error")
		n.logger.Warn(ctx, "dedupe check failed", logger.Error(err))
	}
	if seen {
		metrics.RecordNotificationDuplicate()
		n.logger.Debug(ctx, "notification already sent", logger.String("key", g.Key()))
		return nil
	}

	var errs []error
	attempts := 0

	if to := g.Recipient(); to == "" {
		metrics.RecordNotification(KindGuest, "skipped")
	} else {
		attempts++
		replyTo := ""
		if len(n.admins) > 0 {
			replyTo = n.admins[0]
		}
		if err := n.send(ctx, KindGuest, []string{to}, replyTo, n.composer.Guest, g); err != nil {
			errs = append(errs, err)
		}
	}

	if len(n.admins) == 0 {
		metrics.RecordNotification(KindAdmin, "skipped")
	} else {
		attempts++
		if err := n.send(ctx, KindAdmin, n.admins, "", n.composer.Admin, g); err != nil {
			errs = append(errs, err)
		}
	}

	if attempts > 0 && len(errs) == attempts {
		if err := n.deduper.Unrecord(ctx, g.Key()); err != nil {
			n.logger.Warn(ctx, "dedupe unrecord failed", logger.Error(err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) send(ctx context.Context, kind string, to []string, replyTo string, compose func(model.Guest) (Message, error), g model.Guest) error { //nolint:gocritic // hugeParam: guest is copied once per send
	msg, err := compose(g)
	if err != nil {
		metrics.RecordNotification(kind, "failed")
		return fmt.Errorf("%s: %w", kind, err)
	}

	id, err := n.sender.Send(ctx, Email{From: n.from, To: to, ReplyTo: replyTo, Message: msg})
	if err != nil {
		metrics.RecordNotification(kind, "failed")
		return fmt.Errorf("%s: %w", kind, err)
	}

	metrics.RecordNotification(kind, "sent")
	n.logger.Info(ctx, "notification sent",
		logger.String("kind", kind),
		logger.Int("recipients", len(to)),
		logger.String("message_id", id),
	)
	return nil
}
