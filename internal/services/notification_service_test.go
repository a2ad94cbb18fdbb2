package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-moderation-backend/internal/domain"
	"github.com/tbourn/go-moderation-backend/internal/mail"
	"github.com/tbourn/go-moderation-backend/internal/repo"
)

// fakeMailer simulates the three delivery outcomes.
type fakeMailer struct {
	configured bool
	result     mail.Result
	err        error

	calls int
	to    string
}

func (f *fakeMailer) Configured() bool { return f.configured }

func (f *fakeMailer) Send(ctx context.Context, to, subject, htmlBody string) (mail.Result, error) {
	f.calls++
	f.to = to
	return f.result, f.err
}

func TestDeliver_UnconfiguredMailer_NoAttemptNoRow(t *testing.T) {
	db := newServiceDB(t)
	m := &fakeMailer{configured: false}
	svc := &NotificationService{DB: db, Mailer: m}

	svc.Deliver(context.Background(), 1, "u@example.com", "s", "b")

	if m.calls != 0 {
		t.Fatalf("unconfigured mailer was invoked")
	}
	logs, err := repo.ListNotificationLogs(context.Background(), db, 1)
	if err != nil || len(logs) != 0 {
		t.Fatalf("logs = %v, %v; want none", logs, err)
	}
}

func TestDeliver_NilMailer_NoPanic(t *testing.T) {
	db := newServiceDB(t)
	svc := &NotificationService{DB: db}
	svc.Deliver(context.Background(), 1, "u@example.com", "s", "b")
}

func TestDeliver_Accepted_LogsSent(t *testing.T) {
	db := newServiceDB(t)
	m := &fakeMailer{configured: true, result: mail.Result{StatusCode: 202}}
	svc := &NotificationService{DB: db, Mailer: m}

	svc.Deliver(context.Background(), 7, "u@example.com", "s", "b")

	if m.calls != 1 || m.to != "u@example.com" {
		t.Fatalf("mailer calls = %d to %q", m.calls, m.to)
	}
	logs, err := repo.ListNotificationLogs(context.Background(), db, 7)
	if err != nil || len(logs) != 1 {
		t.Fatalf("logs = %v, %v; want one row", logs, err)
	}
	if logs[0].Channel != "email" || logs[0].Status != "sent" {
		t.Fatalf("log = %+v", logs[0])
	}
	if logs[0].SentAt.IsZero() {
		t.Fatalf("SentAt not set")
	}
}

func TestDeliver_Rejected_LogsStatusAndBody(t *testing.T) {
	db := newServiceDB(t)
	m := &fakeMailer{configured: true, result: mail.Result{StatusCode: 401, Body: `{"errors":["bad key"]}`}}
	svc := &NotificationService{DB: db, Mailer: m}

	svc.Deliver(context.Background(), 8, "u@example.com", "s", "b")

	logs, err := repo.ListNotificationLogs(context.Background(), db, 8)
	if err != nil || len(logs) != 1 {
		t.Fatalf("logs = %v, %v; want one row", logs, err)
	}
	if logs[0].Status != `failed: 401 - {"errors":["bad key"]}` {
		t.Fatalf("status = %q", logs[0].Status)
	}
}

func TestDeliver_TransportError_LogsError(t *testing.T) {
	db := newServiceDB(t)
	m := &fakeMailer{configured: true, err: errors.New("connection refused")}
	svc := &NotificationService{DB: db, Mailer: m}

	svc.Deliver(context.Background(), 9, "u@example.com", "s", "b")

	logs, err := repo.ListNotificationLogs(context.Background(), db, 9)
	if err != nil || len(logs) != 1 {
		t.Fatalf("logs = %v, %v; want one row", logs, err)
	}
	if logs[0].Status != "error: connection refused" {
		t.Fatalf("status = %q", logs[0].Status)
	}
}

func TestDeliver_LogWriteFailure_IsContained(t *testing.T) {
	// No notification_logs table: the insert fails, but Deliver must not
	// panic or surface anything.
	db := newServiceDB(t, &domain.ModerationRequest{}, &domain.ModerationResult{})
	m := &fakeMailer{configured: true, result: mail.Result{StatusCode: 202}}
	svc := &NotificationService{DB: db, Mailer: m}
	svc.Deliver(context.Background(), 10, "u@example.com", "s", "b")

	if m.calls != 1 {
		t.Fatalf("delivery attempt must still happen, calls = %d", m.calls)
	}
}
