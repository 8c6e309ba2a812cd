// users.go serves the admin /api/v1/admin/users endpoints.
package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/service"
)

// ListUsers serves GET /api/v1/admin/users?search=&status=&page=.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.accounts.List(r.Context(), service.UserListFilter{
		Query:       q.Get("search"),
		Status:      q.Get("status"),
		PageRequest: pageRequest(r),
	})
	if err != nil {
		h.writeServiceError(w, r, "list_users", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, mapUser))
}

// UpdateUserStatus serves PATCH /api/v1/admin/users/{id}/status.
func (h *APIHandler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	status := model.UserStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	user, err := h.accounts.UpdateStatus(r.Context(), *p, chi.URLParam(r, "id"), status)
	if err != nil {
		h.writeServiceError(w, r, "update_user_status", err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// UpdateUserRole serves PATCH /api/v1/admin/users/{id}/role.
func (h *APIHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	role := model.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	user, err := h.accounts.UpdateRole(r.Context(), *p, chi.URLParam(r, "id"), role)
	if err != nil {
		h.writeServiceError(w, r, "update_user_role", err)
		return
	}
	writeJSON(w, http.StatusOK, mapUser(user))
}

// DeleteUser serves DELETE /api/v1/admin/users/{id}.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), *p, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "delete_user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
