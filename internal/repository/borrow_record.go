package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/librarium/internal/domain/model"
)

// BorrowRecordRepository is the data access interface for borrow_records.
type BorrowRecordRepository interface {
	Create(ctx context.Context, rec *model.BorrowRecord) error
	GetByID(ctx context.Context, id string) (*model.BorrowRecord, error)
	// MarkReturned moves a BORROWED record to RETURNED. Returns ErrNotFound
	// when no BORROWED record with that id exists.
	MarkReturned(ctx context.Context, id string, at time.Time) (*model.BorrowRecord, error)
	// ListOverdue returns open records due before now, oldest due first.
	// limit <= 0 returns all of them.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.OverdueLoan, error)
	CountByStatus(ctx context.Context) (map[model.BorrowStatus]int, error)
	List(ctx context.Context, f RecordFilter) ([]*model.BorrowRecordDetail, int, error)
	GetDetail(ctx context.Context, id string) (*model.BorrowRecordDetail, error)
}

// RecordFilter narrows a borrow record listing.
type RecordFilter struct {
	// Substring of user name, user email or book title
	Query  string
	Status *model.BorrowStatus
	// OverdueOnly keeps open records due before Now.
	OverdueOnly bool
	Now         time.Time
	UserID      string
	NewestFirst bool
	Page
}

type borrowRecordRepo struct {
	db DBTX
}

// NewBorrowRecordRepository creates a borrow records repository.
func NewBorrowRecordRepository(db DBTX) BorrowRecordRepository {
	return &borrowRecordRepo{db: db}
}

const recordColumns = `id, user_id, book_id, borrow_date, due_date, return_date, status, created_at`

func scanRecord(row pgx.Row) (*model.BorrowRecord, error) {
	rec := &model.BorrowRecord{}
	var status string
	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.BookID, &rec.BorrowDate, &rec.DueDate,
		&rec.ReturnDate, &status, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = model.BorrowStatus(status)
	return rec, nil
}

func (r *borrowRecordRepo) Create(ctx context.Context, rec *model.BorrowRecord) error {
	query := `
		INSERT INTO borrow_records (id, user_id, book_id, borrow_date, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.UserID, rec.BookID, rec.BorrowDate, rec.DueDate, string(rec.Status),
	).Scan(&rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: borrow record %s already exists", ErrConflict, rec.ID)
		}
		return fmt.Errorf("create borrow record: %w", err)
	}
	return nil
}

func (r *borrowRecordRepo) GetByID(ctx context.Context, id string) (*model.BorrowRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM borrow_records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get borrow record: %w", err)
	}
	return rec, nil
}

func (r *borrowRecordRepo) MarkReturned(ctx context.Context, id string, at time.Time) (*model.BorrowRecord, error) {
	query := `
		UPDATE borrow_records
		SET status = 'RETURNED', return_date = $2
		WHERE id = $1 AND status = 'BORROWED'
		RETURNING ` + recordColumns

	rec, err := scanRecord(r.db.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mark borrow record returned: %w", err)
	}
	return rec, nil
}

func (r *borrowRecordRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]model.OverdueLoan, error) {
	ds := dialect.From(goqu.T("borrow_records").As("r")).
		InnerJoin(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("r.user_id")))).
		InnerJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.book_id")))).
		Select("r.id", "u.id", "u.full_name", "u.email", "b.id", "b.title", "r.due_date").
		Where(
			goqu.I("r.return_date").IsNull(),
			goqu.I("r.due_date").Lt(now),
		).
		Order(goqu.I("r.due_date").Asc(), goqu.I("r.id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build overdue query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list overdue records: %w", err)
	}
	defer rows.Close()

	result := make([]model.OverdueLoan, 0)
	for rows.Next() {
		var l model.OverdueLoan
		if err := rows.Scan(&l.RecordID, &l.UserID, &l.UserName, &l.UserEmail,
			&l.BookID, &l.BookTitle, &l.DueDate); err != nil {
			return nil, fmt.Errorf("scan overdue record: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *borrowRecordRepo) CountByStatus(ctx context.Context) (map[model.BorrowStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM borrow_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count borrow records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.BorrowStatus]int, len(model.BorrowStatuses))
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan borrow record count: %w", err)
		}
		counts[model.BorrowStatus(status)] = n
	}
	return counts, rows.Err()
}

// detailDataset joins records with their user and book.
func detailDataset() *goqu.SelectDataset {
	return dialect.From(goqu.T("borrow_records").As("r")).
		InnerJoin(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("r.user_id")))).
		InnerJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("r.book_id"))))
}

var detailColumns = []any{
	"r.id", "r.user_id", "r.book_id", "r.borrow_date", "r.due_date", "r.return_date", "r.status", "r.created_at",
	"u.full_name", "u.email", "u.university_id", "u.status",
	"b.title", "b.author", "b.genre", "b.cover_url", "b.cover_color", "b.total_copies", "b.available_copies",
}

func scanDetail(row pgx.Row) (*model.BorrowRecordDetail, error) {
	d := &model.BorrowRecordDetail{}
	var status, userStatus string
	if err := row.Scan(
		&d.ID, &d.UserID, &d.BookID, &d.BorrowDate, &d.DueDate, &d.ReturnDate, &status, &d.CreatedAt,
		&d.UserFullName, &d.UserEmail, &d.UserUniversityID, &userStatus,
		&d.BookTitle, &d.BookAuthor, &d.BookGenre, &d.BookCoverURL, &d.BookCoverColor,
		&d.BookTotalCopies, &d.BookAvailableCopies,
	); err != nil {
		return nil, err
	}
	d.Status = model.BorrowStatus(status)
	d.UserStatus = model.UserStatus(userStatus)
	return d, nil
}

func (r *borrowRecordRepo) List(ctx context.Context, f RecordFilter) ([]*model.BorrowRecordDetail, int, error) {
	ds := detailDataset()
	if f.Query != "" {
		p := likePattern(f.Query)
		ds = ds.Where(goqu.Or(
			goqu.I("u.full_name").ILike(p),
			goqu.I("u.email").ILike(p),
			goqu.I("b.title").ILike(p),
		))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.I("r.status").Eq(string(*f.Status)))
	}
	if f.OverdueOnly {
		ds = ds.Where(
			goqu.I("r.status").Eq(string(model.BorrowStatusBorrowed)),
			goqu.I("r.due_date").Lt(f.Now),
		)
	}
	if f.UserID != "" {
		ds = ds.Where(goqu.I("r.user_id").Eq(f.UserID))
	}

	total, err := queryCount(ctx, r.db, ds)
	if err != nil {
		return nil, 0, fmt.Errorf("count borrow records: %w", err)
	}

	order := goqu.I("r.borrow_date").Asc()
	if f.NewestFirst {
		order = goqu.I("r.borrow_date").Desc()
	}
	query, args, err := f.Page.apply(ds.Select(detailColumns...).Order(order)).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build borrow record list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list borrow records: %w", err)
	}
	defer rows.Close()

	result := make([]*model.BorrowRecordDetail, 0)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan borrow record: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *borrowRecordRepo) GetDetail(ctx context.Context, id string) (*model.BorrowRecordDetail, error) {
	query, args, err := detailDataset().
		Select(detailColumns...).
		Where(goqu.I("r.id").Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build borrow record query: %w", err)
	}

	d, err := scanDetail(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get borrow record detail: %w", err)
	}
	return d, nil
}
