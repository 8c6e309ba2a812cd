package model

import (
	"fmt"
	"strings"
	"time"
)

// BorrowStatus is the state of a single loan.
type BorrowStatus string

const (
	BorrowStatusBorrowed BorrowStatus = "BORROWED"
	BorrowStatusReturned BorrowStatus = "RETURNED"
)

// BorrowStatuses lists every status in display order.
var BorrowStatuses = []BorrowStatus{BorrowStatusBorrowed, BorrowStatusReturned}

// Valid reports whether s is a known status.
func (s BorrowStatus) Valid() bool {
	switch s {
	case BorrowStatusBorrowed, BorrowStatusReturned:
		return true
	}
	return false
}

// ParseBorrowStatus parses a case-insensitive status name.
func ParseBorrowStatus(v string) (BorrowStatus, error) {
	s := BorrowStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown borrow status %q", v)
	}
	return s, nil
}

// BorrowRecord is one loan of one copy of a book to one user.
type BorrowRecord struct {
	ID         string
	UserID     string
	BookID     string
	BorrowDate time.Time
	DueDate    time.Time
	// nil until the copy is returned
	ReturnDate *time.Time
	Status     BorrowStatus
	CreatedAt  time.Time
}

// IsOverdue reports whether the loan is still open past its due date.
func (r *BorrowRecord) IsOverdue(now time.Time) bool {
	return r.Status == BorrowStatusBorrowed && r.DueDate.Before(now)
}

// BorrowRecordDetail is a record joined with its user and book.
type BorrowRecordDetail struct {
	BorrowRecord

	UserFullName     string
	UserEmail        string
	UserUniversityID int
	UserStatus       UserStatus

	BookTitle           string
	BookAuthor          string
	BookGenre           string
	BookCoverURL        string
	BookCoverColor      string
	BookTotalCopies     int
	BookAvailableCopies int
}

// OverdueLoan is an open loan past due, with the borrower's contact data.
type OverdueLoan struct {
	RecordID  string
	UserID    string
	UserName  string
	UserEmail string
	BookID    string
	BookTitle string
	DueDate   time.Time
}
