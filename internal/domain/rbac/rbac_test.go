package rbac

import (
	"errors"
	"testing"

	"github.com/bigkaa/librarium/internal/domain/model"
)

func TestSatisfies(t *testing.T) {
	tests := []struct {
		name string
		have model.Role
		need model.Role
		want bool
	}{
		{"admin for admin", model.RoleAdmin, model.RoleAdmin, true},
		{"admin for user", model.RoleAdmin, model.RoleUser, true},
		{"user for user", model.RoleUser, model.RoleUser, true},
		{"user for admin", model.RoleUser, model.RoleAdmin, false},
		{"unknown role", model.Role("GUEST"), model.RoleUser, false},
		{"empty role", model.Role(""), model.RoleUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfies(tt.have, tt.need); got != tt.want {
				t.Errorf("Satisfies(%q, %q) = %v, want %v", tt.have, tt.need, got, tt.want)
			}
		})
	}
}

func TestCheckRoleChange(t *testing.T) {
	tests := []struct {
		name    string
		actor   string
		target  string
		role    model.Role
		wantErr error
	}{
		{"promote other", "a", "b", model.RoleAdmin, nil},
		{"demote other", "a", "b", model.RoleUser, nil},
		{"demote self", "a", "a", model.RoleUser, ErrSelfModification},
		{"keep self admin", "a", "a", model.RoleAdmin, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRoleChange(tt.actor, tt.target, tt.role)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckRoleChange() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckDelete(t *testing.T) {
	if err := CheckDelete("a", "b"); err != nil {
		t.Errorf("CheckDelete(other) = %v, want nil", err)
	}
	if err := CheckDelete("a", "a"); !errors.Is(err, ErrSelfModification) {
		t.Errorf("CheckDelete(self) = %v, want ErrSelfModification", err)
	}
}
