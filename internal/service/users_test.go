package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/librarium/internal/auth"
	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/domain/rbac"
	"github.com/bigkaa/librarium/internal/notify"
)

func newUserFixture() (*memStore, *recordingSender, *UserService) {
	store := newMemStore()
	sender := &recordingSender{}
	svc := NewUserService(store, fakeTokens{}, sender, discardLogger())
	svc.now = fixedClock
	return store, sender, svc
}

func validSignUp() SignUpInput {
	return SignUpInput{
		FullName:       "Ada Lovelace",
		Email:          "  Ada@Example.com ",
		UniversityID:   1815,
		UniversityCard: "https://cdn.example.com/cards/ada.png",
		Password:       "analytical-engine",
	}
}

func principalOf(u *model.User) auth.Principal {
	return auth.Principal{UserID: u.ID, Email: u.Email, Name: u.FullName, Role: u.Role}
}

func TestSignUp(t *testing.T) {
	store, sender, svc := newUserFixture()

	session, err := svc.SignUp(context.Background(), validSignUp())
	require.NoError(t, err)

	u := session.User
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, model.UserStatusPending, u.Status)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.NotEqual(t, "analytical-engine", u.PasswordHash)
	assert.NoError(t, auth.CheckPassword(u.PasswordHash, "analytical-engine"))
	assert.Equal(t, "token-"+u.ID, session.Token)

	_, ok := store.user(u.ID)
	assert.True(t, ok)

	msgs := sender.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.TemplateWelcome, msgs[0].Template)
	assert.Equal(t, "ada@example.com", msgs[0].To)
	assert.Equal(t, "Ada Lovelace", msgs[0].Vars["name"])
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	_, _, svc := newUserFixture()

	_, err := svc.SignUp(context.Background(), validSignUp())
	require.NoError(t, err)

	in := validSignUp()
	in.Email = "ADA@EXAMPLE.COM"
	_, err = svc.SignUp(context.Background(), in)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignUp_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SignUpInput)
		field  string
	}{
		{"short name", func(in *SignUpInput) { in.FullName = "Al" }, "full_name"},
		{"bad email", func(in *SignUpInput) { in.Email = "not-an-email" }, "email"},
		{"zero university id", func(in *SignUpInput) { in.UniversityID = 0 }, "university_id"},
		{"missing card", func(in *SignUpInput) { in.UniversityCard = "" }, "university_card"},
		{"short password", func(in *SignUpInput) { in.Password = "short" }, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, sender, svc := newUserFixture()
			in := validSignUp()
			tt.mutate(&in)

			_, err := svc.SignUp(context.Background(), in)

			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.field)
			assert.Empty(t, store.users)
			assert.Empty(t, sender.sent())
		})
	}
}

func TestSignUp_WelcomeMailFailureIsNotFatal(t *testing.T) {
	_, sender, svc := newUserFixture()
	sender.failFor = map[string]error{"ada@example.com": errSMTPDown}

	session, err := svc.SignUp(context.Background(), validSignUp())

	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
}

func TestSignUp_TokenFailure(t *testing.T) {
	store := newMemStore()
	svc := NewUserService(store, fakeTokens{err: errors.New("hsm offline")}, &recordingSender{}, discardLogger())

	_, err := svc.SignUp(context.Background(), validSignUp())
	assert.Error(t, err)
}

func TestSignIn(t *testing.T) {
	store, _, svc := newUserFixture()
	session, err := svc.SignUp(context.Background(), validSignUp())
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	got, err := svc.SignIn(context.Background(), "ADA@example.com ", "analytical-engine")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, got.User.ID)
	assert.Equal(t, "token-"+session.User.ID, got.Token)

	stored, _ := store.user(session.User.ID)
	assert.Equal(t, later, stored.LastActivityDate)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	_, _, svc := newUserFixture()
	_, err := svc.SignUp(context.Background(), validSignUp())
	require.NoError(t, err)

	_, err = svc.SignIn(context.Background(), "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.SignIn(context.Background(), "nobody@example.com", "analytical-engine")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateAdmin(t *testing.T) {
	_, sender, svc := newUserFixture()

	u, err := svc.CreateAdmin(context.Background(), validSignUp())

	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.Equal(t, model.UserStatusApproved, u.Status)
	assert.Empty(t, sender.sent())
}

func TestUpdateStatus(t *testing.T) {
	store, _, svc := newUserFixture()
	admin := store.addUser(model.UserStatusApproved, model.RoleAdmin, "admin@example.com")
	reader := store.addUser(model.UserStatusPending, model.RoleUser, "reader@example.com")

	u, err := svc.UpdateStatus(context.Background(), principalOf(admin), reader.ID, model.UserStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusApproved, u.Status)

	u, err = svc.UpdateStatus(context.Background(), principalOf(admin), reader.ID, model.UserStatusRejected)
	require.NoError(t, err)
	assert.Equal(t, model.UserStatusRejected, u.Status)

	_, err = svc.UpdateStatus(context.Background(), principalOf(admin), reader.ID, model.UserStatusPending)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateStatus(context.Background(), principalOf(admin), uuid.NewString(), model.UserStatusApproved)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAdminActions_RecheckActorRole(t *testing.T) {
	store, _, svc := newUserFixture()
	demoted := store.addUser(model.UserStatusApproved, model.RoleUser, "former-admin@example.com")
	reader := store.addUser(model.UserStatusPending, model.RoleUser, "reader@example.com")

	// The token still claims ADMIN, the database no longer does.
	actor := principalOf(demoted)
	actor.Role = model.RoleAdmin

	_, err := svc.UpdateStatus(context.Background(), actor, reader.ID, model.UserStatusApproved)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.UpdateRole(context.Background(), actor, reader.ID, model.RoleAdmin)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.Delete(context.Background(), actor, reader.ID), ErrForbidden)

	ghost := auth.Principal{UserID: uuid.NewString(), Role: model.RoleAdmin}
	_, err = svc.UpdateStatus(context.Background(), ghost, reader.ID, model.UserStatusApproved)
	assert.ErrorIs(t, err, ErrForbidden)

	stored, _ := store.user(reader.ID)
	assert.Equal(t, model.UserStatusPending, stored.Status)
}

func TestUpdateRole(t *testing.T) {
	store, _, svc := newUserFixture()
	admin := store.addUser(model.UserStatusApproved, model.RoleAdmin, "admin@example.com")
	reader := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")

	u, err := svc.UpdateRole(context.Background(), principalOf(admin), reader.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)

	_, err = svc.UpdateRole(context.Background(), principalOf(admin), admin.ID, model.RoleUser)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, rbac.ErrSelfModification)

	_, err = svc.UpdateRole(context.Background(), principalOf(admin), reader.ID, model.Role("ROOT"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteUser(t *testing.T) {
	store, _, svc := newUserFixture()
	admin := store.addUser(model.UserStatusApproved, model.RoleAdmin, "admin@example.com")
	reader := store.addUser(model.UserStatusApproved, model.RoleUser, "reader@example.com")
	book := store.addBook("Dune", 2, 1)
	store.addRecord(reader.ID, book.ID, fixedNow, model.BorrowStatusBorrowed)

	err := svc.Delete(context.Background(), principalOf(admin), admin.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.Delete(context.Background(), principalOf(admin), reader.ID))
	_, ok := store.user(reader.ID)
	assert.False(t, ok)
	assert.Zero(t, store.recordCount())

	err = svc.Delete(context.Background(), principalOf(admin), reader.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsers(t *testing.T) {
	store, _, svc := newUserFixture()
	store.addUser(model.UserStatusApproved, model.RoleUser, "ann@example.com")
	store.addUser(model.UserStatusPending, model.RoleUser, "bob@example.com")
	store.addUser(model.UserStatusPending, model.RoleUser, "bea@example.com")

	p, err := svc.List(context.Background(), UserListFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)

	p, err = svc.List(context.Background(), UserListFilter{Query: "ANN"})
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "ann@example.com", p.Items[0].Email)

	_, err = svc.List(context.Background(), UserListFilter{Status: "BANNED"})
	assert.ErrorIs(t, err, ErrValidation)
}
