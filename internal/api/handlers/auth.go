// auth.go serves sign-up and sign-in.
package handlers

import (
	"net/http"

	"github.com/bigkaa/librarium/internal/service"
)

// SignUp serves POST /api/v1/auth/sign-up. The new account is PENDING
// until an admin approves it, but the caller is signed in right away.
func (h *APIHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req service.SignUpInput
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.accounts.SignUp(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "sign_up", err)
		return
	}
	writeJSON(w, http.StatusCreated, mapSession(session))
}

// SignIn serves POST /api/v1/auth/sign-in.
func (h *APIHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "sign_in", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSession(session))
}
