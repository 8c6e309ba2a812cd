// notices.go sends overdue reminders, one email per borrower.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/librarium/internal/notify"
)

var overdueNoticesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lh_overdue_notices_total",
	Help: "Overdue notices by delivery result.",
}, []string{"result"})

// dueDateLayout formats due dates inside notices.
const dueDateLayout = "Jan 2, 2006"

// FailedNotice is a recipient whose notice could not be delivered.
type FailedNotice struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// NoticeSummary reports the outcome of one overdue notice batch.
type NoticeSummary struct {
	Sent   int            `json:"sent"`
	Total  int            `json:"total"`
	Failed []FailedNotice `json:"failed"`
	// NothingToSend is set when no record was overdue.
	NothingToSend bool `json:"nothing_to_send"`
}

// overdueGroup is every overdue loan of one recipient.
type overdueGroup struct {
	email string
	name  string
	books []string
}

// NoticeService emails borrowers about their overdue loans.
type NoticeService struct {
	store  Store
	sender notify.Sender
	now    Clock
	logger *slog.Logger
}

// NewNoticeService creates the overdue notice service.
func NewNoticeService(store Store, sender notify.Sender, logger *slog.Logger) *NoticeService {
	return &NoticeService{
		store:  store,
		sender: sender,
		now:    systemClock,
		logger: logger.With(slog.String("component", "notice_service")),
	}
}

// SendOverdueNotices sends one notice per borrower with overdue loans.
// Delivery failures are collected in the summary and never stop the batch.
// Each notice is attempted once.
func (s *NoticeService) SendOverdueNotices(ctx context.Context) (*NoticeSummary, error) {
	loans, err := s.store.Repos().Records.ListOverdue(ctx, s.now(), 0)
	if err != nil {
		return nil, fmt.Errorf("list overdue loans: %w", err)
	}

	summary := &NoticeSummary{Failed: []FailedNotice{}}
	if len(loans) == 0 {
		summary.NothingToSend = true
		s.logger.Info("No overdue loans")
		return summary, nil
	}

	// Group by email in first-seen order.
	var groups []*overdueGroup
	byEmail := make(map[string]*overdueGroup)
	for _, l := range loans {
		key := strings.ToLower(l.UserEmail)
		g, ok := byEmail[key]
		if !ok {
			g = &overdueGroup{email: l.UserEmail, name: l.UserName}
			byEmail[key] = g
			groups = append(groups, g)
		}
		g.books = append(g.books, fmt.Sprintf("%s (due %s)", l.BookTitle, l.DueDate.Format(dueDateLayout)))
	}
	summary.Total = len(groups)

	for _, g := range groups {
		err := s.sender.Send(ctx, notify.Message{
			Template: notify.TemplateOverdueNotice,
			To:       g.email,
			Vars: map[string]any{
				"name":         g.name,
				"book_list":    g.books,
				"notice_count": len(g.books),
			},
		})
		if err != nil {
			overdueNoticesTotal.WithLabelValues("failed").Inc()
			summary.Failed = append(summary.Failed, FailedNotice{Email: g.email, Reason: err.Error()})
			s.logger.Warn("Overdue notice failed",
				slog.String("email", g.email),
				slog.String("error", err.Error()),
			)
			continue
		}
		overdueNoticesTotal.WithLabelValues("sent").Inc()
		summary.Sent++
	}

	s.logger.Info("Overdue notices processed",
		slog.Int("sent", summary.Sent),
		slog.Int("total", summary.Total),
		slog.Int("failed", len(summary.Failed)),
	)
	return summary, nil
}
