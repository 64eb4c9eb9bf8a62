package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/ispwatch/internal/core/report"
	"github.com/example/ispwatch/internal/ports/secondary"
)

// NotificationServiceImpl sends operator notifications. Delivery failures are
// logged and never surface to the caller.
type NotificationServiceImpl struct {
	notifier secondary.Notifier // nil when notifications are not configured
	ispName  string
	logger   *zap.Logger
}

// NewNotificationService creates a new NotificationService. notifier may be nil.
func NewNotificationService(notifier secondary.Notifier, ispName string, logger *zap.Logger) *NotificationServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationServiceImpl{notifier: notifier, ispName: ispName, logger: logger}
}

// Enabled reports whether a channel is configured.
func (s *NotificationServiceImpl) Enabled() bool {
	return s.notifier != nil
}

// NotifyFiling reports a filing attempt.
func (s *NotificationServiceImpl) NotifyFiling(ctx context.Context, status report.FilingStatus, period, confirmationRef, failure, complaintText string) {
	s.send(ctx, secondary.Notification{
		Subject: report.ComplaintSubject(status, s.ispName, period),
		Body:    report.ComplaintBody(status, period, confirmationRef, failure, complaintText),
	})
}

// NotifySummary sends the daily summary.
func (s *NotificationServiceImpl) NotifySummary(ctx context.Context, subject, body string) {
	s.send(ctx, secondary.Notification{Subject: subject, Body: body})
}

func (s *NotificationServiceImpl) send(ctx context.Context, msg secondary.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("failed to send notification", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	s.logger.Debug("notification sent", zap.String("subject", msg.Subject))
}
