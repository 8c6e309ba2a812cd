// Package lending holds the pure borrow and return rules. Functions here
// take already loaded state and return a decision without touching storage.
package lending

import (
	"errors"
	"math"
	"time"

	"github.com/bigkaa/librarium/internal/domain/model"
)

// LoanPeriod is the fixed time between borrow date and due date.
const LoanPeriod = 7 * 24 * time.Hour

var (
	// ErrNotEligible is returned when the borrower is missing or not approved.
	ErrNotEligible = errors.New("registration pending approval")
	// ErrBookNotFound is returned when the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")
	// ErrNoCopiesAvailable is returned when every copy is on loan.
	ErrNoCopiesAvailable = errors.New("book is not available for borrowing")
	// ErrRecordNotFound is returned when the borrow record does not exist.
	ErrRecordNotFound = errors.New("borrow record not found")
	// ErrAlreadyReturned is returned on a second return of the same record.
	ErrAlreadyReturned = errors.New("book is already returned")
)

// DecideBorrow checks the borrow preconditions in order: the user must
// exist and be approved, then the book must exist with a free copy.
// A nil user or book means the row was not found.
func DecideBorrow(user *model.User, book *model.Book) error {
	if user == nil || !user.CanBorrow() {
		return ErrNotEligible
	}
	if book == nil {
		return ErrBookNotFound
	}
	if book.AvailableCopies <= 0 {
		return ErrNoCopiesAvailable
	}
	return nil
}

// DecideReturn checks that a record can move from BORROWED to RETURNED.
func DecideReturn(record *model.BorrowRecord) error {
	if record == nil {
		return ErrRecordNotFound
	}
	switch record.Status {
	case model.BorrowStatusReturned:
		return ErrAlreadyReturned
	case model.BorrowStatusBorrowed:
		return nil
	}
	return ErrAlreadyReturned
}

// NewLoan builds a BORROWED record starting at now.
func NewLoan(id, userID, bookID string, now time.Time) *model.BorrowRecord {
	return &model.BorrowRecord{
		ID:         id,
		UserID:     userID,
		BookID:     bookID,
		BorrowDate: now,
		DueDate:    DueDate(now),
		Status:     model.BorrowStatusBorrowed,
		CreatedAt:  now,
	}
}

// DueDate returns borrowDate plus the loan period.
func DueDate(borrowDate time.Time) time.Time {
	return borrowDate.Add(LoanPeriod)
}

// DaysOverdue returns the number of started days since due, rounded up.
// Zero when due is not in the past.
func DaysOverdue(due, now time.Time) int {
	if !due.Before(now) {
		return 0
	}
	return int(math.Ceil(now.Sub(due).Hours() / 24))
}
