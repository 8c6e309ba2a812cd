// books.go is the catalog: listings, details and admin edits.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/repository"
)

const (
	defaultLatest  = 10
	maxLatest      = 50
	catalogPerPage = 12
)

// BookInput is the editable part of a book. TotalCopies is required on
// create; on update it may be omitted or repeat the stored value.
type BookInput struct {
	Title       string `json:"title" validate:"required,min=2,max=100"`
	Author      string `json:"author" validate:"required,min=2,max=100"`
	Genre       string `json:"genre" validate:"required,min=2,max=50"`
	Rating      int    `json:"rating" validate:"min=1,max=5"`
	TotalCopies int    `json:"total_copies" validate:"omitempty,min=1,max=10000"`
	CoverURL    string `json:"cover_url" validate:"required,url"`
	CoverColor  string `json:"cover_color" validate:"required,len=7,hexcolor"`
	Description string `json:"description" validate:"required,min=10,max=1000"`
	VideoURL    string `json:"video_url" validate:"required,url"`
	Summary     string `json:"summary" validate:"required,min=10"`
}

func (in *BookInput) trim() {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Genre = strings.TrimSpace(in.Genre)
	in.CoverURL = strings.TrimSpace(in.CoverURL)
	in.CoverColor = strings.TrimSpace(in.CoverColor)
	in.Description = strings.TrimSpace(in.Description)
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	in.Summary = strings.TrimSpace(in.Summary)
}

func (in *BookInput) applyTo(b *model.Book) {
	b.Title = in.Title
	b.Author = in.Author
	b.Genre = in.Genre
	b.Rating = in.Rating
	b.CoverURL = in.CoverURL
	b.CoverColor = strings.ToUpper(in.CoverColor)
	b.Description = in.Description
	b.VideoURL = in.VideoURL
	b.Summary = in.Summary
}

// BookService serves the catalog and its admin CRUD.
type BookService struct {
	store  Store
	cache  *BookCache
	now    Clock
	newID  func() string
	logger *slog.Logger
}

// NewBookService creates the catalog service.
func NewBookService(store Store, cache *BookCache, logger *slog.Logger) *BookService {
	return &BookService{
		store:  store,
		cache:  cache,
		now:    systemClock,
		newID:  uuid.NewString,
		logger: logger.With(slog.String("component", "book_service")),
	}
}

// Latest returns the n newest books.
func (s *BookService) Latest(ctx context.Context, n int) ([]*model.Book, error) {
	if n <= 0 {
		n = defaultLatest
	}
	if n > maxLatest {
		n = maxLatest
	}
	books, err := s.store.Repos().Books.Latest(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("latest books: %w", err)
	}
	return books, nil
}

// Search matches title, author or genre, oldest first.
func (s *BookService) Search(ctx context.Context, query string, page PageRequest) (*Paginated[*model.Book], error) {
	return s.search(ctx, query, false, page)
}

// AdminList is Search ordered newest first, as the admin catalog shows it.
func (s *BookService) AdminList(ctx context.Context, query string, page PageRequest) (*Paginated[*model.Book], error) {
	return s.search(ctx, query, true, page)
}

func (s *BookService) search(ctx context.Context, query string, newestFirst bool, page PageRequest) (*Paginated[*model.Book], error) {
	page = page.normalize(catalogPerPage)
	books, total, err := s.store.Repos().Books.Search(ctx, repository.BookFilter{
		Query:       strings.TrimSpace(query),
		NewestFirst: newestFirst,
		Page:        page.repoPage(),
	})
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return newPaginated(books, total, page), nil
}

// Get returns one book, from cache when possible.
func (s *BookService) Get(ctx context.Context, id string) (*model.Book, error) {
	if !validID(id) {
		return nil, ErrBookNotFound
	}
	if b, ok := s.cache.Get(id); ok {
		return b, nil
	}

	generation := s.cache.Generation()
	b, err := s.store.Repos().Books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	s.cache.SetIfCurrent(b, generation)
	return b, nil
}

// Create adds a book with every copy available.
func (s *BookService) Create(ctx context.Context, in BookInput) (*model.Book, error) {
	in.trim()
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.TotalCopies == 0 {
		return nil, fmt.Errorf("%w: total_copies is required", ErrValidation)
	}

	b := &model.Book{
		ID:              s.newID(),
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		CreatedAt:       s.now(),
	}
	in.applyTo(b)

	if err := s.store.Repos().Books.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	s.logger.Info("Book created",
		slog.String("book_id", b.ID),
		slog.String("title", b.Title),
		slog.Int("total_copies", b.TotalCopies),
	)
	return b, nil
}

// Update rewrites book metadata. Changing total_copies is rejected.
func (s *BookService) Update(ctx context.Context, id string, in BookInput) (*model.Book, error) {
	in.trim()
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrBookNotFound
	}

	repos := s.store.Repos()
	current, err := repos.Books.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	if in.TotalCopies != 0 && in.TotalCopies != current.TotalCopies {
		return nil, fmt.Errorf("%w: total_copies is fixed at creation (%d)", ErrValidation, current.TotalCopies)
	}

	in.applyTo(current)
	if err := repos.Books.Update(ctx, current); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("update book: %w", err)
	}
	s.cache.Invalidate(id)

	s.logger.Info("Book updated", slog.String("book_id", id))
	return current, nil
}

// Delete removes a book together with its borrow records.
func (s *BookService) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrBookNotFound
	}
	if err := s.store.Repos().Books.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookNotFound
		}
		return fmt.Errorf("delete book: %w", err)
	}
	s.cache.Invalidate(id)

	s.logger.Info("Book deleted", slog.String("book_id", id))
	return nil
}
