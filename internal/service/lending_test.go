package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/librarium/internal/domain/model"
)

func newLendingFixture() (*memStore, *LendingService, *BookService) {
	store := newMemStore()
	cache := NewBookCache(100, time.Minute)
	lendingSvc := NewLendingService(store, cache, discardLogger())
	lendingSvc.now = fixedClock
	bookSvc := NewBookService(store, cache, discardLogger())
	return store, lendingSvc, bookSvc
}

func TestBorrow_Success(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 3, 2)

	rec, err := svc.Borrow(context.Background(), user.ID, book.ID)
	require.NoError(t, err)

	assert.Equal(t, model.BorrowStatusBorrowed, rec.Status)
	assert.Equal(t, fixedNow, rec.BorrowDate)
	assert.Equal(t, rec.BorrowDate.Add(7*24*time.Hour), rec.DueDate)
	assert.Nil(t, rec.ReturnDate)
	assert.Equal(t, 1, store.book(book.ID).AvailableCopies)
	assert.Equal(t, 1, store.recordCount())
	store.checkCopyBounds(t)
}

func TestBorrow_IneligibleUserChangesNothing(t *testing.T) {
	tests := []struct {
		name   string
		status model.UserStatus
		userID func(s *memStore) string
	}{
		{"pending", model.UserStatusPending, nil},
		{"rejected", model.UserStatusRejected, nil},
		{"missing user", "", func(*memStore) string { return uuid.NewString() }},
		{"malformed id", "", func(*memStore) string { return "not-a-uuid" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc, _ := newLendingFixture()
			book := store.addBook("Dune", 5, 5)

			var userID string
			if tt.userID != nil {
				userID = tt.userID(store)
			} else {
				userID = store.addUser(tt.status, model.RoleUser, "u@example.com").ID
			}

			for _, bookID := range []string{book.ID, book.ID, uuid.NewString(), "not-a-uuid"} {
				_, err := svc.Borrow(context.Background(), userID, bookID)
				assert.ErrorIs(t, err, ErrNotEligible, "book id %q", bookID)
			}
			assert.Equal(t, 5, store.book(book.ID).AvailableCopies)
			assert.Zero(t, store.recordCount())
		})
	}
}

func TestBorrow_PendingUserScenario(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusPending, model.RoleUser, "pending@example.com")
	book := store.addBook("Neuromancer", 5, 5)

	_, err := svc.Borrow(context.Background(), user.ID, book.ID)

	require.ErrorIs(t, err, ErrNotEligible)
	assert.EqualError(t, err, "registration pending approval")
	assert.Equal(t, 5, store.book(book.ID).AvailableCopies)
}

func TestBorrow_LastCopyScenario(t *testing.T) {
	store, svc, _ := newLendingFixture()
	first := store.addUser(model.UserStatusApproved, model.RoleUser, "first@example.com")
	second := store.addUser(model.UserStatusApproved, model.RoleUser, "second@example.com")
	book := store.addBook("Foundation", 3, 1)

	_, err := svc.Borrow(context.Background(), first.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, store.book(book.ID).AvailableCopies)

	_, err = svc.Borrow(context.Background(), second.ID, book.ID)
	assert.ErrorIs(t, err, ErrNoCopiesAvailable)
	assert.Equal(t, 0, store.book(book.ID).AvailableCopies)
	assert.Equal(t, 1, store.recordCount())
	store.checkCopyBounds(t)
}

func TestBorrow_NoCopies(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Hyperion", 2, 0)

	_, err := svc.Borrow(context.Background(), user.ID, book.ID)

	assert.ErrorIs(t, err, ErrNoCopiesAvailable)
	assert.Zero(t, store.recordCount())
}

func TestBorrow_BookNotFound(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")

	_, err := svc.Borrow(context.Background(), user.ID, uuid.NewString())
	assert.ErrorIs(t, err, ErrBookNotFound)

	_, err = svc.Borrow(context.Background(), user.ID, "42")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

// memStore serializes transactions, so this covers the decision path under
// contention. The conditional decrement itself races in
// TestLendingService_ConcurrentBorrowPostgres.
func TestBorrow_ContendedLastCopy(t *testing.T) {
	store, svc, _ := newLendingFixture()
	book := store.addBook("Solaris", 4, 1)

	const borrowers = 20
	users := make([]*model.User, borrowers)
	for i := range users {
		users[i] = store.addUser(model.UserStatusApproved, model.RoleUser, uuid.NewString()+"@example.com")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		noCopies  int
	)
	for _, u := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Borrow(context.Background(), id, book.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrNoCopiesAvailable):
				noCopies++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, borrowers-1, noCopies)
	assert.Equal(t, 0, store.book(book.ID).AvailableCopies)
	assert.Equal(t, 1, store.recordCount())
	store.checkCopyBounds(t)
}

func TestBorrow_InsertFailureRollsBackDecrement(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Ubik", 1, 1)
	store.failRecordCreate = errors.New("disk full")

	_, err := svc.Borrow(context.Background(), user.ID, book.ID)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCopiesAvailable)
	assert.Equal(t, 1, store.book(book.ID).AvailableCopies)
	assert.Zero(t, store.recordCount())
}

func TestBorrowAndReturn_InvalidateBookCache(t *testing.T) {
	store, svc, books := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 2, 2)

	cached, err := books.Get(context.Background(), book.ID)
	require.NoError(t, err)
	require.Equal(t, 2, cached.AvailableCopies)

	rec, err := svc.Borrow(context.Background(), user.ID, book.ID)
	require.NoError(t, err)
	got, err := books.Get(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableCopies)

	_, err = svc.MarkReturned(context.Background(), rec.ID)
	require.NoError(t, err)
	got, err = books.Get(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableCopies)
}

func TestMarkReturned_Idempotent(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 3, 3)

	rec, err := svc.Borrow(context.Background(), user.ID, book.ID)
	require.NoError(t, err)
	require.Equal(t, 2, store.book(book.ID).AvailableCopies)

	returned, err := svc.MarkReturned(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BorrowStatusReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, fixedNow, *returned.ReturnDate)
	assert.Equal(t, 3, store.book(book.ID).AvailableCopies)

	_, err = svc.MarkReturned(context.Background(), rec.ID)
	assert.ErrorIs(t, err, ErrAlreadyReturned)
	assert.Equal(t, 3, store.book(book.ID).AvailableCopies)
	store.checkCopyBounds(t)
}

func TestMarkReturned_NotFound(t *testing.T) {
	_, svc, _ := newLendingFixture()

	_, err := svc.MarkReturned(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = svc.MarkReturned(context.Background(), "bogus")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMarkReturned_FullShelfKeepsBounds(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 2, 2)
	rec := store.addRecord(user.ID, book.ID, fixedNow.Add(-48*time.Hour), model.BorrowStatusBorrowed)

	_, err := svc.MarkReturned(context.Background(), rec.ID)

	require.NoError(t, err)
	assert.Equal(t, 2, store.book(book.ID).AvailableCopies)
	store.checkCopyBounds(t)
}

func TestListRecords_OverdueDetection(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 5, 2)

	late := store.addRecord(user.ID, book.ID, fixedNow.Add(-10*24*time.Hour), model.BorrowStatusBorrowed)
	store.addRecord(user.ID, book.ID, fixedNow.Add(-2*24*time.Hour), model.BorrowStatusBorrowed)
	store.addRecord(user.ID, book.ID, fixedNow.Add(-30*24*time.Hour), model.BorrowStatusReturned)

	all, err := svc.ListRecords(context.Background(), RecordListFilter{})
	require.NoError(t, err)
	require.Equal(t, 3, all.Total)
	overdueCount := 0
	for _, item := range all.Items {
		if item.Status == model.BorrowStatusReturned {
			assert.False(t, item.IsOverdue, "returned records are never overdue")
		}
		if item.IsOverdue {
			overdueCount++
		}
	}
	assert.Equal(t, 1, overdueCount)

	overdue, err := svc.ListRecords(context.Background(), RecordListFilter{Status: "overdue"})
	require.NoError(t, err)
	require.Len(t, overdue.Items, 1)
	assert.Equal(t, late.ID, overdue.Items[0].ID)
	assert.Equal(t, 3, overdue.Items[0].DaysOverdue)

	returned, err := svc.ListRecords(context.Background(), RecordListFilter{Status: "RETURNED"})
	require.NoError(t, err)
	assert.Equal(t, 1, returned.Total)

	_, err = svc.ListRecords(context.Background(), RecordListFilter{Status: "LOST"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListRecords_Pagination(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 50, 50)
	for i := range 5 {
		store.addRecord(user.ID, book.ID, fixedNow.Add(time.Duration(-i)*time.Hour), model.BorrowStatusBorrowed)
	}

	p, err := svc.ListRecords(context.Background(), RecordListFilter{PageRequest: PageRequest{Page: 2, PerPage: 2}})

	require.NoError(t, err)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.Len(t, p.Items, 2)
}

func TestGetRecord(t *testing.T) {
	store, svc, _ := newLendingFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 5, 4)
	rec := store.addRecord(user.ID, book.ID, fixedNow.Add(-8*24*time.Hour-time.Hour), model.BorrowStatusBorrowed)

	item, err := svc.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", item.BookTitle)
	assert.Equal(t, "reader@example.com", item.UserEmail)
	assert.True(t, item.IsOverdue)
	assert.Equal(t, 2, item.DaysOverdue)

	_, err = svc.GetRecord(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestMyRecords(t *testing.T) {
	store, svc, _ := newLendingFixture()
	me := store.addUser(model.UserStatusApproved, model.RoleUser, "me@example.com")
	other := store.addUser(model.UserStatusApproved, model.RoleUser, "other@example.com")
	book := store.addBook("Dune", 5, 2)
	older := store.addRecord(me.ID, book.ID, fixedNow.Add(-72*time.Hour), model.BorrowStatusReturned)
	newer := store.addRecord(me.ID, book.ID, fixedNow.Add(-time.Hour), model.BorrowStatusBorrowed)
	store.addRecord(other.ID, book.ID, fixedNow.Add(-time.Hour), model.BorrowStatusBorrowed)

	items, err := svc.MyRecords(context.Background(), me.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, newer.ID, items[0].ID)
	assert.Equal(t, older.ID, items[1].ID)

	items, err = svc.MyRecords(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, items)
}
