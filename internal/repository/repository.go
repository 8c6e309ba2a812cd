// Package repository is the PostgreSQL data access layer. Fixed queries
// are plain SQL through pgx; filtered listings are built with goqu.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound means the row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a unique constraint was violated.
	ErrConflict = errors.New("conflict: record already exists")
)

// dialect builds PostgreSQL statements with $n placeholders.
var dialect = goqu.Dialect("postgres")

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so repositories
// work inside and outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups every repository bound to one DBTX.
type Repositories struct {
	Users   UserRepository
	Books   BookRepository
	Records BorrowRecordRepository
}

// NewRepositories binds all repositories to db.
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Users:   NewUserRepository(db),
		Books:   NewBookRepository(db),
		Records: NewBorrowRecordRepository(db),
	}
}

// TxRunner hands out repositories bound to the pool or to a transaction.
type TxRunner struct {
	pool  *pgxpool.Pool
	repos Repositories
}

// NewTxRunner creates a TxRunner over pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool, repos: NewRepositories(pool)}
}

// Repos returns repositories that run each statement on its own.
func (r *TxRunner) Repos() Repositories {
	return r.repos
}

// RunInTx runs fn with repositories bound to a single transaction.
// The transaction is rolled back if fn fails and committed otherwise.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(Repositories) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Page limits a listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if p.Limit > 0 {
		ds = ds.Limit(uint(p.Limit))
	}
	if p.Offset > 0 {
		ds = ds.Offset(uint(p.Offset))
	}
	return ds
}

// likePattern wraps s for a substring ILIKE match with wildcards escaped.
func likePattern(s string) string {
	r := make([]rune, 0, len(s)+2)
	r = append(r, '%')
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	return string(append(r, '%'))
}

// queryCount runs a SELECT COUNT(*) built from ds.
func queryCount(ctx context.Context, db DBTX, ds *goqu.SelectDataset) (int, error) {
	query, args, err := ds.Select(goqu.COUNT("*")).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
