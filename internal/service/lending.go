// lending.go borrows and returns books inside one transaction each.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/librarium/internal/domain/lending"
	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/repository"
)

var (
	borrowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lh_borrows_total",
		Help: "Borrow attempts by result.",
	}, []string{"result"})
	returnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lh_returns_total",
		Help: "Return attempts by result.",
	}, []string{"result"})
)

// lendingResult turns an outcome into a metric label.
func lendingResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrBookNotFound):
		return "book_not_found"
	case errors.Is(err, ErrNoCopiesAvailable):
		return "no_copies"
	case errors.Is(err, ErrRecordNotFound):
		return "record_not_found"
	case errors.Is(err, ErrAlreadyReturned):
		return "already_returned"
	}
	return "error"
}

// isBusinessError reports whether err is an expected lending outcome.
func isBusinessError(err error) bool {
	return lendingResult(err) != "error"
}

// RecordItem is a borrow record as shown in listings.
type RecordItem struct {
	*model.BorrowRecordDetail
	IsOverdue   bool
	DaysOverdue int
}

// RecordListFilter narrows the admin borrow record listing.
type RecordListFilter struct {
	Query string
	// BORROWED, RETURNED, OVERDUE or empty for all
	Status string
	PageRequest
}

// LendingService runs the borrow and return lifecycles and the record listings.
type LendingService struct {
	store  Store
	books  *BookCache
	now    Clock
	newID  func() string
	logger *slog.Logger
}

// NewLendingService creates the lending service. books is invalidated on
// every change to a book's available copies.
func NewLendingService(store Store, books *BookCache, logger *slog.Logger) *LendingService {
	return &LendingService{
		store:  store,
		books:  books,
		now:    systemClock,
		newID:  uuid.NewString,
		logger: logger.With(slog.String("component", "lending_service")),
	}
}

// Borrow lends one copy of bookID to userID for the loan period.
// The eligibility check, the decrement and the insert share one transaction.
func (s *LendingService) Borrow(ctx context.Context, userID, bookID string) (*model.BorrowRecord, error) {
	record, err := s.borrow(ctx, userID, bookID)
	borrowsTotal.WithLabelValues(lendingResult(err)).Inc()
	if err != nil {
		level := slog.LevelInfo
		if !isBusinessError(err) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "Borrow rejected",
			slog.String("user_id", userID),
			slog.String("book_id", bookID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.books.Invalidate(bookID)
	s.logger.Info("Book borrowed",
		slog.String("record_id", record.ID),
		slog.String("user_id", userID),
		slog.String("book_id", bookID),
		slog.Time("due_date", record.DueDate),
	)
	return record, nil
}

func (s *LendingService) borrow(ctx context.Context, userID, bookID string) (*model.BorrowRecord, error) {
	if !validID(userID) {
		return nil, ErrNotEligible
	}

	var record *model.BorrowRecord
	err := s.store.RunInTx(ctx, func(r repository.Repositories) error {
		user, err := r.Users.GetByIDForShare(ctx, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load user: %w", err)
		}
		// A malformed book id is an unknown book, but eligibility is decided first.
		var book *model.Book
		if validID(bookID) {
			book, err = r.Books.GetByID(ctx, bookID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("load book: %w", err)
			}
		}

		if err := lending.DecideBorrow(user, book); err != nil {
			return err
		}

		// The read above may be stale; the conditional update is authoritative.
		taken, err := r.Books.DecrementAvailable(ctx, bookID)
		if err != nil {
			return fmt.Errorf("decrement available copies: %w", err)
		}
		if !taken {
			return ErrNoCopiesAvailable
		}

		rec := lending.NewLoan(s.newID(), userID, bookID, s.now())
		if err := r.Records.Create(ctx, rec); err != nil {
			return fmt.Errorf("create borrow record: %w", err)
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// MarkReturned closes a loan and puts the copy back on the shelf.
// A second call for the same record fails with ErrAlreadyReturned and
// leaves the copy count alone.
func (s *LendingService) MarkReturned(ctx context.Context, recordID string) (*model.BorrowRecord, error) {
	record, err := s.markReturned(ctx, recordID)
	returnsTotal.WithLabelValues(lendingResult(err)).Inc()
	if err != nil {
		level := slog.LevelInfo
		if !isBusinessError(err) {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "Return rejected",
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.books.Invalidate(record.BookID)
	s.logger.Info("Book returned",
		slog.String("record_id", record.ID),
		slog.String("book_id", record.BookID),
	)
	return record, nil
}

func (s *LendingService) markReturned(ctx context.Context, recordID string) (*model.BorrowRecord, error) {
	if !validID(recordID) {
		return nil, ErrRecordNotFound
	}

	var record *model.BorrowRecord
	err := s.store.RunInTx(ctx, func(r repository.Repositories) error {
		rec, err := r.Records.MarkReturned(ctx, recordID, s.now())
		if errors.Is(err, repository.ErrNotFound) {
			existing, gerr := r.Records.GetByID(ctx, recordID)
			if gerr != nil && !errors.Is(gerr, repository.ErrNotFound) {
				return fmt.Errorf("load borrow record: %w", gerr)
			}
			if derr := lending.DecideReturn(existing); derr != nil {
				return derr
			}
			return ErrAlreadyReturned
		}
		if err != nil {
			return fmt.Errorf("mark returned: %w", err)
		}

		restored, err := r.Books.IncrementAvailable(ctx, rec.BookID)
		if err != nil {
			return fmt.Errorf("increment available copies: %w", err)
		}
		if !restored {
			s.logger.Warn("Return left copies unchanged",
				slog.String("record_id", rec.ID),
				slog.String("book_id", rec.BookID),
			)
		}
		record = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListRecords returns one page of borrow records for admins, oldest borrow first.
func (s *LendingService) ListRecords(ctx context.Context, f RecordListFilter) (*Paginated[RecordItem], error) {
	page := f.PageRequest.normalize(20)
	now := s.now()
	filter := repository.RecordFilter{
		Query: strings.TrimSpace(f.Query),
		Now:   now,
		Page:  page.repoPage(),
	}

	switch status := strings.ToUpper(strings.TrimSpace(f.Status)); status {
	case "":
	case "OVERDUE":
		filter.OverdueOnly = true
	default:
		st, err := model.ParseBorrowStatus(status)
		if err != nil {
			return nil, fmt.Errorf("%w: status must be BORROWED, RETURNED or OVERDUE", ErrValidation)
		}
		filter.Status = &st
	}

	details, total, err := s.store.Repos().Records.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list borrow records: %w", err)
	}
	return newPaginated(toRecordItems(details, now), total, page), nil
}

// GetRecord returns one record with its user and book.
func (s *LendingService) GetRecord(ctx context.Context, id string) (*RecordItem, error) {
	if !validID(id) {
		return nil, ErrRecordNotFound
	}
	d, err := s.store.Repos().Records.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get borrow record: %w", err)
	}
	item := toRecordItem(d, s.now())
	return &item, nil
}

// MyRecords returns every record of userID, newest borrow first.
func (s *LendingService) MyRecords(ctx context.Context, userID string) ([]RecordItem, error) {
	if !validID(userID) {
		return []RecordItem{}, nil
	}
	now := s.now()
	details, _, err := s.store.Repos().Records.List(ctx, repository.RecordFilter{
		UserID:      userID,
		NewestFirst: true,
		Now:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("list user borrow records: %w", err)
	}
	return toRecordItems(details, now), nil
}

func toRecordItems(details []*model.BorrowRecordDetail, now time.Time) []RecordItem {
	items := make([]RecordItem, 0, len(details))
	for _, d := range details {
		items = append(items, toRecordItem(d, now))
	}
	return items
}

func toRecordItem(d *model.BorrowRecordDetail, now time.Time) RecordItem {
	item := RecordItem{BorrowRecordDetail: d, IsOverdue: d.IsOverdue(now)}
	if item.IsOverdue {
		item.DaysOverdue = lending.DaysOverdue(d.DueDate, now)
	}
	return item
}
