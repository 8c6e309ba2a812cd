// users.go covers onboarding, sign-in and account administration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/librarium/internal/auth"
	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/domain/rbac"
	"github.com/bigkaa/librarium/internal/notify"
	"github.com/bigkaa/librarium/internal/repository"
)

// TokenIssuer signs access tokens. *auth.Issuer implements it.
type TokenIssuer interface {
	Issue(user *model.User) (string, time.Time, error)
}

// SignUpInput is a self-registration request.
type SignUpInput struct {
	FullName       string `json:"full_name" validate:"required,min=3,max=255"`
	Email          string `json:"email" validate:"required,email,max=255"`
	UniversityID   int    `json:"university_id" validate:"gt=0"`
	UniversityCard string `json:"university_card" validate:"required,max=2048"`
	// bcrypt ignores bytes past 72
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Session is a signed-in user and their access token.
type Session struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// UserListFilter narrows the admin user listing.
type UserListFilter struct {
	Query string
	// PENDING, APPROVED, REJECTED or empty for all
	Status string
	PageRequest
}

// UserService handles registration, sign-in and admin user management.
type UserService struct {
	store  Store
	tokens TokenIssuer
	mailer notify.Sender
	now    Clock
	newID  func() string
	logger *slog.Logger
}

// NewUserService creates the account service.
func NewUserService(store Store, tokens TokenIssuer, mailer notify.Sender, logger *slog.Logger) *UserService {
	return &UserService{
		store:  store,
		tokens: tokens,
		mailer: mailer,
		now:    systemClock,
		newID:  uuid.NewString,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// SignUp registers a PENDING user, sends the welcome mail and signs the
// user in. A failed welcome mail is logged and does not fail the sign-up.
func (s *UserService) SignUp(ctx context.Context, in SignUpInput) (*Session, error) {
	user, err := s.register(ctx, in, model.UserStatusPending, model.RoleUser)
	if err != nil {
		return nil, err
	}

	if err := s.mailer.Send(ctx, notify.Message{
		Template: notify.TemplateWelcome,
		To:       user.Email,
		Vars:     map[string]any{"name": user.FullName},
	}); err != nil {
		s.logger.Warn("Welcome mail failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return s.newSession(user)
}

// CreateAdmin registers an APPROVED administrator. Used to bootstrap an
// empty installation from the command line.
func (s *UserService) CreateAdmin(ctx context.Context, in SignUpInput) (*model.User, error) {
	return s.register(ctx, in, model.UserStatusApproved, model.RoleAdmin)
}

func (s *UserService) register(ctx context.Context, in SignUpInput, status model.UserStatus, role model.Role) (*model.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = normalizeEmail(in.Email)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	repos := s.store.Repos()
	if _, err := repos.Users.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &model.User{
		ID:               s.newID(),
		FullName:         in.FullName,
		Email:            in.Email,
		UniversityID:     in.UniversityID,
		UniversityCard:   in.UniversityCard,
		PasswordHash:     hash,
		Status:           status,
		Role:             role,
		LastActivityDate: now,
		CreatedAt:        now,
	}
	if err := repos.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("User registered",
		slog.String("user_id", user.ID),
		slog.String("status", string(user.Status)),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// dummyHash is compared against when the email is unknown, so both
// failure paths cost one bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("librarium-dummy-password")
	return h
})

// SignIn checks credentials and issues an access token. Unknown emails and
// wrong passwords fail the same way.
func (s *UserService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	repos := s.store.Repos()

	user, err := repos.Users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = auth.CheckPassword(dummyHash(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if err := repos.Users.TouchActivity(ctx, user.ID, now); err != nil {
		s.logger.Warn("Activity update failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastActivityDate = now
	}

	return s.newSession(user)
}

func (s *UserService) newSession(user *model.User) (*Session, error) {
	token, exp, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: exp}, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, ErrUserNotFound
	}
	u, err := s.store.Repos().Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// List returns one page of users, newest first.
func (s *UserService) List(ctx context.Context, f UserListFilter) (*Paginated[*model.User], error) {
	page := f.PageRequest.normalize(20)
	filter := repository.UserFilter{
		Query: strings.TrimSpace(f.Query),
		Page:  page.repoPage(),
	}
	if strings.TrimSpace(f.Status) != "" {
		st, err := model.ParseUserStatus(f.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		filter.Status = &st
	}

	users, total, err := s.store.Repos().Users.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return newPaginated(users, total, page), nil
}

// UpdateStatus approves or rejects a user's registration.
func (s *UserService) UpdateStatus(ctx context.Context, actor auth.Principal, userID string, status model.UserStatus) (*model.User, error) {
	switch status {
	case model.UserStatusApproved, model.UserStatusRejected:
	case model.UserStatusPending:
		return nil, fmt.Errorf("%w: status can only be set to APPROVED or REJECTED", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if !validID(userID) {
		return nil, ErrUserNotFound
	}

	if err := s.store.Repos().Users.UpdateStatus(ctx, userID, status); err != nil {
		return nil, s.mapUserErr("update user status", err)
	}
	s.logger.Info("User status changed",
		slog.String("user_id", userID),
		slog.String("status", string(status)),
		slog.String("actor_id", actor.UserID),
	)
	return s.Get(ctx, userID)
}

// UpdateRole changes a user's role. Admins cannot demote themselves.
func (s *UserService) UpdateRole(ctx context.Context, actor auth.Principal, userID string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if err := rbac.CheckRoleChange(actor.UserID, userID, role); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	if !validID(userID) {
		return nil, ErrUserNotFound
	}

	if err := s.store.Repos().Users.UpdateRole(ctx, userID, role); err != nil {
		return nil, s.mapUserErr("update user role", err)
	}
	s.logger.Info("User role changed",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
		slog.String("actor_id", actor.UserID),
	)
	return s.Get(ctx, userID)
}

// Delete removes a user and their borrow records. Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor auth.Principal, userID string) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := rbac.CheckDelete(actor.UserID, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	if !validID(userID) {
		return ErrUserNotFound
	}

	if err := s.store.Repos().Users.Delete(ctx, userID); err != nil {
		return s.mapUserErr("delete user", err)
	}
	s.logger.Info("User deleted",
		slog.String("user_id", userID),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

// requireAdmin re-reads the actor from the database, so a token issued
// before a demotion stops granting admin actions.
func (s *UserService) requireAdmin(ctx context.Context, actor auth.Principal) error {
	if !validID(actor.UserID) {
		return ErrForbidden
	}
	u, err := s.store.Repos().Users.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("load actor: %w", err)
	}
	if !rbac.IsAdmin(u.Role) {
		return ErrForbidden
	}
	return nil
}

func (s *UserService) mapUserErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
