package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/librarium/internal/domain/lending"
	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/repository"
)

const (
	dashboardListLimit = 5
	pendingWindowDays  = 7
)

// BookTotals aggregates the catalog.
type BookTotals struct {
	TotalBooks      int `json:"total_books"`
	TotalCopies     int `json:"total_copies"`
	AvailableCopies int `json:"available_copies"`
}

// OverdueEntry is an open loan past its due date.
type OverdueEntry struct {
	model.OverdueLoan
	DaysOverdue int
}

// DashboardSnapshot is the admin overview.
type DashboardSnapshot struct {
	UsersByStatus   map[model.UserStatus]int
	Books           BookTotals
	BorrowsByStatus map[model.BorrowStatus]int
	RecentPending   []*model.User
	Overdue         []OverdueEntry
	GeneratedAt     time.Time
}

// DashboardService builds the admin overview. It only reads.
type DashboardService struct {
	store  Store
	now    Clock
	logger *slog.Logger
}

// NewDashboardService creates the dashboard service.
func NewDashboardService(store Store, logger *slog.Logger) *DashboardService {
	return &DashboardService{
		store:  store,
		now:    systemClock,
		logger: logger.With(slog.String("component", "dashboard_service")),
	}
}

// GetDashboardData collects counts and short lists. Every status is present
// in the maps and empty tables yield zeros and empty lists.
func (s *DashboardService) GetDashboardData(ctx context.Context) (*DashboardSnapshot, error) {
	repos := s.store.Repos()
	now := s.now()

	snap := &DashboardSnapshot{
		UsersByStatus:   make(map[model.UserStatus]int, len(model.UserStatuses)),
		BorrowsByStatus: make(map[model.BorrowStatus]int, len(model.BorrowStatuses)),
		RecentPending:   []*model.User{},
		Overdue:         []OverdueEntry{},
		GeneratedAt:     now,
	}
	for _, st := range model.UserStatuses {
		snap.UsersByStatus[st] = 0
	}
	for _, st := range model.BorrowStatuses {
		snap.BorrowsByStatus[st] = 0
	}

	users, err := repos.Users.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users by status: %w", err)
	}
	for st, n := range users {
		snap.UsersByStatus[st] = n
	}

	stats, err := repos.Books.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("book stats: %w", err)
	}
	snap.Books = bookTotals(stats)

	borrows, err := repos.Records.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count borrows by status: %w", err)
	}
	for st, n := range borrows {
		snap.BorrowsByStatus[st] = n
	}

	pending, err := repos.Users.RecentPending(ctx, now.AddDate(0, 0, -pendingWindowDays), dashboardListLimit)
	if err != nil {
		return nil, fmt.Errorf("recent pending users: %w", err)
	}
	snap.RecentPending = append(snap.RecentPending, pending...)

	overdue, err := repos.Records.ListOverdue(ctx, now, dashboardListLimit)
	if err != nil {
		return nil, fmt.Errorf("overdue loans: %w", err)
	}
	for _, l := range overdue {
		snap.Overdue = append(snap.Overdue, OverdueEntry{
			OverdueLoan: l,
			DaysOverdue: lending.DaysOverdue(l.DueDate, now),
		})
	}

	s.logger.Debug("Dashboard built",
		slog.Int("overdue", len(snap.Overdue)),
		slog.Int("recent_pending", len(snap.RecentPending)),
	)
	return snap, nil
}

func bookTotals(s repository.BookStats) BookTotals {
	return BookTotals{
		TotalBooks:      s.TotalBooks,
		TotalCopies:     s.TotalCopies,
		AvailableCopies: s.AvailableCopies,
	}
}
