package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/librarium/internal/domain/model"
)

func newBookFixture() (*memStore, *BookService) {
	store := newMemStore()
	svc := NewBookService(store, NewBookCache(100, time.Minute), discardLogger())
	svc.now = fixedClock
	return store, svc
}

func validBookInput() BookInput {
	return BookInput{
		Title:       "The Left Hand of Darkness",
		Author:      "Ursula K. Le Guin",
		Genre:       "Science Fiction",
		Rating:      5,
		TotalCopies: 4,
		CoverURL:    "https://cdn.example.com/covers/lhod.jpg",
		CoverColor:  "#1a2b3c",
		Description: "An envoy visits a world whose people have no fixed sex.",
		VideoURL:    "https://cdn.example.com/trailers/lhod.mp4",
		Summary:     "Genly Ai and Estraven cross the ice.",
	}
}

func TestCreateBook(t *testing.T) {
	store, svc := newBookFixture()

	b, err := svc.Create(context.Background(), validBookInput())
	require.NoError(t, err)

	assert.Equal(t, 4, b.TotalCopies)
	assert.Equal(t, 4, b.AvailableCopies)
	assert.Equal(t, "#1A2B3C", b.CoverColor)
	assert.Equal(t, fixedNow, b.CreatedAt)
	assert.Equal(t, b.Title, store.book(b.ID).Title)
}

func TestCreateBook_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BookInput)
	}{
		{"short title", func(in *BookInput) { in.Title = "A" }},
		{"rating zero", func(in *BookInput) { in.Rating = 0 }},
		{"rating six", func(in *BookInput) { in.Rating = 6 }},
		{"short color", func(in *BookInput) { in.CoverColor = "#abc" }},
		{"not a color", func(in *BookInput) { in.CoverColor = "crimson" }},
		{"missing cover", func(in *BookInput) { in.CoverURL = "" }},
		{"short description", func(in *BookInput) { in.Description = "Too short" }},
		{"missing copies", func(in *BookInput) { in.TotalCopies = 0 }},
		{"too many copies", func(in *BookInput) { in.TotalCopies = 10001 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, svc := newBookFixture()
			in := validBookInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), in)

			assert.ErrorIs(t, err, ErrValidation)
			assert.Empty(t, store.books)
		})
	}
}

func TestUpdateBook(t *testing.T) {
	store, svc := newBookFixture()
	book := store.addBook("Old Title", 4, 1)

	in := validBookInput()
	in.TotalCopies = 0
	updated, err := svc.Update(context.Background(), book.ID, in)
	require.NoError(t, err)
	assert.Equal(t, in.Title, updated.Title)
	assert.Equal(t, 4, updated.TotalCopies)
	assert.Equal(t, 1, updated.AvailableCopies)

	in.TotalCopies = 4
	_, err = svc.Update(context.Background(), book.ID, in)
	assert.NoError(t, err)

	in.TotalCopies = 10
	_, err = svc.Update(context.Background(), book.ID, in)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 4, store.book(book.ID).TotalCopies)

	in.TotalCopies = 0
	_, err = svc.Update(context.Background(), uuid.NewString(), in)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestGetBook_CachedUntilMutation(t *testing.T) {
	store, svc := newBookFixture()
	book := store.addBook("Dune", 2, 2)

	first, err := svc.Get(context.Background(), book.ID)
	require.NoError(t, err)
	require.Equal(t, "Dune", first.Title)

	// A write that bypasses the service is not visible while cached.
	store.mu.Lock()
	raw := store.books[book.ID]
	raw.Title = "Dune Messiah"
	store.books[book.ID] = raw
	store.mu.Unlock()

	cached, err := svc.Get(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", cached.Title)

	in := validBookInput()
	in.TotalCopies = 0
	in.Title = "Children of Dune"
	_, err = svc.Update(context.Background(), book.ID, in)
	require.NoError(t, err)

	fresh, err := svc.Get(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Children of Dune", fresh.Title)

	_, err = svc.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestDeleteBook(t *testing.T) {
	store, svc := newBookFixture()
	user := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 2, 1)
	store.addRecord(user.ID, book.ID, fixedNow, model.BorrowStatusBorrowed)

	_, err := svc.Get(context.Background(), book.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), book.ID))
	assert.Zero(t, store.recordCount())

	_, err = svc.Get(context.Background(), book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), book.ID), ErrBookNotFound)
}

func TestSearchAndLatest(t *testing.T) {
	store, svc := newBookFixture()
	for _, title := range []string{"Dune", "Dune Messiah", "Emma", "Persuasion", "Duma Key"} {
		store.addBook(title, 1, 1)
	}

	p, err := svc.Search(context.Background(), "dun", PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 12, p.PerPage)
	assert.Equal(t, "Dune", p.Items[0].Title)

	p, err = svc.AdminList(context.Background(), "", PageRequest{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "Emma", p.Items[0].Title)

	p, err = svc.Search(context.Background(), "nothing matches", PageRequest{})
	require.NoError(t, err)
	assert.NotNil(t, p.Items)
	assert.Zero(t, p.TotalPages)

	latest, err := svc.Latest(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, latest, 5)
	assert.Equal(t, "Duma Key", latest[0].Title)
}
