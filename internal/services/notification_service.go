// Package services – NotificationService
//
// This file implements the NotificationService, the alert channel for
// flagged moderation decisions. It delegates delivery to the injected
// mailer, maps the attempt to exactly one of three outcomes (sent,
// failed, error), and records that outcome as a NotificationLog row.
//
// Containment is the governing rule here: the service is invoked from a
// detached goroutine after the HTTP response has already been written, so
// nothing it does may propagate. Failures are logged and persisted, never
// returned.
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-moderation-backend/internal/mail"
	"github.com/tbourn/go-moderation-backend/internal/repo"
)

// channelEmail is the only delivery channel currently wired.
const channelEmail = "email"

// Mailer is the contract the notifier requires from the mail client.
// *mail.Client satisfies it.
type Mailer interface {
	// Configured reports whether a credential is present. When false the
	// notifier short-circuits: no delivery, no log row, no error.
	Configured() bool
	// Send delivers an HTML message and returns the provider's completion
	// status, or an error when the request never completed.
	Send(ctx context.Context, to, subject, htmlBody string) (mail.Result, error)
}

// NotificationService delivers alert emails for flagged decisions and
// records every attempt.
type NotificationService struct {
	// DB is the database handle used to write NotificationLog rows.
	DB *gorm.DB
	// Mailer is the delivery backend.
	Mailer Mailer
}

// Deliver attempts one alert delivery for requestID and writes exactly one
// NotificationLog row with the outcome:
//
//   - "sent" when the provider accepted the message,
//   - "failed: <status> - <body>" when the provider rejected it,
//   - "error: <detail>" when the request never completed.
//
// When the mailer is unconfigured, Deliver returns without delivering and
// without writing a log row. It never panics and never returns an error;
// the request that triggered it has already been answered.
func (s *NotificationService) Deliver(ctx context.Context, requestID uint, toEmail, subject, body string) {
	if s.Mailer == nil || !s.Mailer.Configured() {
		return
	}

	var status, outcome string
	res, err := s.Mailer.Send(ctx, toEmail, subject, body)
	switch {
	case err != nil:
		status, outcome = "error: "+err.Error(), "error"
	case !res.Accepted():
		status, outcome = fmt.Sprintf("failed: %d - %s", res.StatusCode, res.Body), "failed"
	default:
		status, outcome = "sent", "sent"
	}
	notificationsTotal.WithLabelValues(outcome).Inc()

	if _, err := repo.CreateNotificationLog(ctx, s.DB, requestID, channelEmail, status); err != nil {
		log.Error().
			Err(err).
			Uint("request_id", requestID).
			Str("outcome", status).
			Msg("notification log write failed")
		return
	}

	ev := log.Info()
	if status != "sent" {
		ev = log.Warn()
	}
	ev.
		Uint("request_id", requestID).
		Str("channel", channelEmail).
		Str("outcome", status).
		Msg("notification attempt recorded")
}
