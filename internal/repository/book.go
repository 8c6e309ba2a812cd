package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/librarium/internal/domain/model"
)

// BookRepository is the data access interface for the books table.
type BookRepository interface {
	Create(ctx context.Context, b *model.Book) error
	GetByID(ctx context.Context, id string) (*model.Book, error)
	// Update rewrites catalog metadata. Copy counts are left untouched.
	Update(ctx context.Context, b *model.Book) error
	// Delete removes a book and, via cascade, its borrow records.
	Delete(ctx context.Context, id string) error
	// Search matches title, author or genre case-insensitively.
	Search(ctx context.Context, f BookFilter) ([]*model.Book, int, error)
	// Latest returns the newest books first.
	Latest(ctx context.Context, limit int) ([]*model.Book, error)
	// DecrementAvailable takes one copy if any is free. Reports false
	// when the book is missing or has no free copy.
	DecrementAvailable(ctx context.Context, id string) (bool, error)
	// IncrementAvailable puts one copy back unless all copies are already
	// on the shelf. Reports false when nothing was changed.
	IncrementAvailable(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (BookStats, error)
}

// BookFilter narrows a catalog search.
type BookFilter struct {
	Query string
	// NewestFirst orders by created_at descending instead of ascending.
	NewestFirst bool
	Page
}

// BookStats aggregates the whole catalog.
type BookStats struct {
	TotalBooks      int
	TotalCopies     int
	AvailableCopies int
}

type bookRepo struct {
	db DBTX
}

// NewBookRepository creates a books repository.
func NewBookRepository(db DBTX) BookRepository {
	return &bookRepo{db: db}
}

const bookColumns = `id, title, author, genre, rating, cover_url, cover_color,
	description, video_url, summary, total_copies, available_copies, created_at`

var bookColumnList = []any{
	"id", "title", "author", "genre", "rating", "cover_url", "cover_color",
	"description", "video_url", "summary", "total_copies", "available_copies", "created_at",
}

func scanBook(row pgx.Row) (*model.Book, error) {
	b := &model.Book{}
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.Genre, &b.Rating, &b.CoverURL, &b.CoverColor,
		&b.Description, &b.VideoURL, &b.Summary, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt,
	)
	return b, err
}

func (r *bookRepo) Create(ctx context.Context, b *model.Book) error {
	query := `
		INSERT INTO books (id, title, author, genre, rating, cover_url, cover_color,
			description, video_url, summary, total_copies, available_copies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		b.ID, b.Title, b.Author, b.Genre, b.Rating, b.CoverURL, b.CoverColor,
		b.Description, b.VideoURL, b.Summary, b.TotalCopies, b.AvailableCopies,
	).Scan(&b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: book %s already exists", ErrConflict, b.ID)
		}
		return fmt.Errorf("create book: %w", err)
	}
	return nil
}

func (r *bookRepo) GetByID(ctx context.Context, id string) (*model.Book, error) {
	b, err := scanBook(r.db.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return b, nil
}

func (r *bookRepo) Update(ctx context.Context, b *model.Book) error {
	query := `
		UPDATE books
		SET title = $2, author = $3, genre = $4, rating = $5, cover_url = $6,
			cover_color = $7, description = $8, video_url = $9, summary = $10
		WHERE id = $1
		RETURNING total_copies, available_copies, created_at`

	err := r.db.QueryRow(ctx, query,
		b.ID, b.Title, b.Author, b.Genre, b.Rating, b.CoverURL,
		b.CoverColor, b.Description, b.VideoURL, b.Summary,
	).Scan(&b.TotalCopies, &b.AvailableCopies, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

func (r *bookRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *bookRepo) Search(ctx context.Context, f BookFilter) ([]*model.Book, int, error) {
	ds := dialect.From("books")
	if f.Query != "" {
		p := likePattern(f.Query)
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(p),
			goqu.C("author").ILike(p),
			goqu.C("genre").ILike(p),
		))
	}

	total, err := queryCount(ctx, r.db, ds)
	if err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	order := goqu.C("created_at").Asc()
	if f.NewestFirst {
		order = goqu.C("created_at").Desc()
	}
	query, args, err := f.Page.apply(ds.Select(bookColumnList...).Order(order)).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build book search query: %w", err)
	}

	books, err := r.queryBooks(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

func (r *bookRepo) Latest(ctx context.Context, limit int) ([]*model.Book, error) {
	return r.queryBooks(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *bookRepo) queryBooks(ctx context.Context, query string, args ...any) ([]*model.Book, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Book, 0)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *bookRepo) DecrementAvailable(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE books SET available_copies = available_copies - 1
		WHERE id = $1 AND available_copies > 0`, id)
	if err != nil {
		return false, fmt.Errorf("decrement available copies: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bookRepo) IncrementAvailable(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE books SET available_copies = available_copies + 1
		WHERE id = $1 AND available_copies < total_copies`, id)
	if err != nil {
		return false, fmt.Errorf("increment available copies: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *bookRepo) Stats(ctx context.Context) (BookStats, error) {
	var s BookStats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_copies), 0), COALESCE(SUM(available_copies), 0)
		FROM books`).Scan(&s.TotalBooks, &s.TotalCopies, &s.AvailableCopies)
	if err != nil {
		return BookStats{}, fmt.Errorf("book stats: %w", err)
	}
	return s, nil
}
