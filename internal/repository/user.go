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

// UserRepository is the data access interface for the users table.
type UserRepository interface {
	// Create inserts a user. Returns ErrConflict when the email is taken.
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByIDForShare reads a user and holds a share lock until the
	// transaction ends, so the status cannot change underneath a borrow.
	GetByIDForShare(ctx context.Context, id string) (*model.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// List returns one page of users and the total matching count.
	List(ctx context.Context, f UserFilter) ([]*model.User, int, error)
	UpdateStatus(ctx context.Context, id string, status model.UserStatus) error
	UpdateRole(ctx context.Context, id string, role model.Role) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
	// Delete removes a user. Borrow records go with it via ON DELETE CASCADE.
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[model.UserStatus]int, error)
	// RecentPending returns PENDING users created at or after since, newest first.
	RecentPending(ctx context.Context, since time.Time, limit int) ([]*model.User, error)
}

// UserFilter narrows a user listing.
type UserFilter struct {
	// Substring of full name or email
	Query  string
	Status *model.UserStatus
	Page
}

type userRepo struct {
	db DBTX
}

// NewUserRepository creates a users repository.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, full_name, email, university_id, university_card, password_hash,
	status, role, last_activity_date, created_at`

var userColumnList = []any{
	"id", "full_name", "email", "university_id", "university_card", "password_hash",
	"status", "role", "last_activity_date", "created_at",
}

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	var status, role string
	if err := row.Scan(
		&u.ID, &u.FullName, &u.Email, &u.UniversityID, &u.UniversityCard, &u.PasswordHash,
		&status, &role, &u.LastActivityDate, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	u.Status = model.UserStatus(status)
	u.Role = model.Role(role)
	return u, nil
}

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, full_name, email, university_id, university_card,
			password_hash, status, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING last_activity_date, created_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.FullName, u.Email, u.UniversityID, u.UniversityCard,
		u.PasswordHash, string(u.Status), string(u.Role),
	).Scan(&u.LastActivityDate, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s is already registered", ErrConflict, u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepo) GetByIDForShare(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR SHARE`, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *userRepo) List(ctx context.Context, f UserFilter) ([]*model.User, int, error) {
	ds := dialect.From("users")
	if f.Query != "" {
		p := likePattern(f.Query)
		ds = ds.Where(goqu.Or(
			goqu.C("full_name").ILike(p),
			goqu.C("email").ILike(p),
		))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*f.Status)))
	}

	total, err := queryCount(ctx, r.db, ds)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query, args, err := f.Page.apply(ds.Select(userColumnList...).
		Order(goqu.C("created_at").Desc())).Prepared(true).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build user list query: %w", err)
	}

	users, err := r.queryUsers(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepo) queryUsers(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	result := make([]*model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *userRepo) UpdateStatus(ctx context.Context, id string, status model.UserStatus) error {
	return r.exec(ctx, "update user status",
		`UPDATE users SET status = $2 WHERE id = $1`, id, string(status))
}

func (r *userRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	return r.exec(ctx, "update user role",
		`UPDATE users SET role = $2 WHERE id = $1`, id, string(role))
}

func (r *userRepo) TouchActivity(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "touch user activity",
		`UPDATE users SET last_activity_date = $2 WHERE id = $1`, id, at)
}

func (r *userRepo) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

func (r *userRepo) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) CountByStatus(ctx context.Context) (map[model.UserStatus]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM users GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count users by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.UserStatus]int, len(model.UserStatuses))
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan user count: %w", err)
		}
		counts[model.UserStatus(status)] = n
	}
	return counts, rows.Err()
}

func (r *userRepo) RecentPending(ctx context.Context, since time.Time, limit int) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE status = 'PENDING' AND created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2`
	return r.queryUsers(ctx, query, since, limit)
}
