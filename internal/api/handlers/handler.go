// Package handlers implements the Librarium HTTP API on top of the service layer.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/bigkaa/librarium/internal/api/errors"
	"github.com/bigkaa/librarium/internal/api/middleware"
	"github.com/bigkaa/librarium/internal/auth"
	"github.com/bigkaa/librarium/internal/domain/model"
	"github.com/bigkaa/librarium/internal/service"
)

// Accounts is the account service used by the handlers.
type Accounts interface {
	SignUp(ctx context.Context, in service.SignUpInput) (*service.Session, error)
	SignIn(ctx context.Context, email, password string) (*service.Session, error)
	List(ctx context.Context, f service.UserListFilter) (*service.Paginated[*model.User], error)
	UpdateStatus(ctx context.Context, actor auth.Principal, userID string, status model.UserStatus) (*model.User, error)
	UpdateRole(ctx context.Context, actor auth.Principal, userID string, role model.Role) (*model.User, error)
	Delete(ctx context.Context, actor auth.Principal, userID string) error
}

// Catalog is the book service used by the handlers.
type Catalog interface {
	Latest(ctx context.Context, n int) ([]*model.Book, error)
	Search(ctx context.Context, query string, page service.PageRequest) (*service.Paginated[*model.Book], error)
	AdminList(ctx context.Context, query string, page service.PageRequest) (*service.Paginated[*model.Book], error)
	Get(ctx context.Context, id string) (*model.Book, error)
	Create(ctx context.Context, in service.BookInput) (*model.Book, error)
	Update(ctx context.Context, id string, in service.BookInput) (*model.Book, error)
	Delete(ctx context.Context, id string) error
}

// Lending runs borrows, returns and record listings.
type Lending interface {
	Borrow(ctx context.Context, userID, bookID string) (*model.BorrowRecord, error)
	MarkReturned(ctx context.Context, recordID string) (*model.BorrowRecord, error)
	ListRecords(ctx context.Context, f service.RecordListFilter) (*service.Paginated[service.RecordItem], error)
	GetRecord(ctx context.Context, id string) (*service.RecordItem, error)
	MyRecords(ctx context.Context, userID string) ([]service.RecordItem, error)
}

// Notices sends overdue reminders.
type Notices interface {
	SendOverdueNotices(ctx context.Context) (*service.NoticeSummary, error)
}

// Dashboard builds the admin overview.
type Dashboard interface {
	GetDashboardData(ctx context.Context) (*service.DashboardSnapshot, error)
}

// Assets stores uploaded files.
type Assets interface {
	Enabled() bool
	Upload(ctx context.Context, kind, filename, contentType string, r io.Reader) (string, error)
}

// KeySet publishes the token verification keys.
type KeySet interface {
	JWKS() json.RawMessage
}

// Services groups the dependencies of APIHandler.
type Services struct {
	Accounts  Accounts
	Catalog   Catalog
	Lending   Lending
	Notices   Notices
	Dashboard Dashboard
	Assets    Assets
	Keys      KeySet
}

// APIHandler serves every /api/v1 route and the JWKS document.
type APIHandler struct {
	health    *HealthHandler
	accounts  Accounts
	catalog   Catalog
	lending   Lending
	notices   Notices
	dashboard Dashboard
	assets    Assets
	keys      KeySet
	logger    *slog.Logger
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(health *HealthHandler, svc Services, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:    health,
		accounts:  svc.Accounts,
		catalog:   svc.Catalog,
		lending:   svc.Lending,
		notices:   svc.Notices,
		dashboard: svc.Dashboard,
		assets:    svc.Assets,
		keys:      svc.Keys,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive delegates to HealthHandler.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady delegates to HealthHandler.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics delegates to HealthHandler.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetJWKS serves GET /.well-known/jwks.json.
func (h *APIHandler) GetJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.keys.JWKS())
}

// --- Helpers ---

const maxJSONBody = 1 << 20

// writeJSON writes data as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a single JSON object into dst. On failure it writes a
// VALIDATION_ERROR and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apierrors.ValidationError(w, "Invalid JSON: "+err.Error())
		return false
	}
	if dec.More() {
		apierrors.ValidationError(w, "Invalid JSON: unexpected data after object")
		return false
	}
	return true
}

// writeServiceError maps a service error to its HTTP response. Errors
// outside the taxonomy are logged and reported without detail.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotEligible):
		apierrors.WriteError(w, http.StatusForbidden, apierrors.CodeNotEligible, "User is not approved for borrowing")
	case errors.Is(err, service.ErrNoCopiesAvailable):
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeNoCopiesAvailable, "No copies of this book are available")
	case errors.Is(err, service.ErrAlreadyReturned):
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeAlreadyReturned, "Book has already been returned")
	case errors.Is(err, service.ErrEmailTaken):
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeEmailTaken, "Email is already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		apierrors.WriteError(w, http.StatusUnauthorized, apierrors.CodeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, service.ErrBookNotFound):
		apierrors.NotFound(w, "Book not found")
	case errors.Is(err, service.ErrUserNotFound):
		apierrors.NotFound(w, "User not found")
	case errors.Is(err, service.ErrRecordNotFound):
		apierrors.NotFound(w, "Borrow record not found")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		h.logger.Warn("Object storage failure",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.StorageUnavailable(w, "Object storage is unavailable")
	default:
		h.logger.Error("Request failed",
			slog.String("operation", op),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Internal server error")
	}
}

// principal returns the authenticated caller. Routes behind JWTAuth always
// have one; a missing principal is answered with 401.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := middleware.PrincipalFromContext(r.Context())
	if p == nil {
		apierrors.Unauthorized(w, "Authentication required")
		return nil, false
	}
	return p, true
}

// pageRequest reads page and per_page. Malformed values fall back to defaults.
func pageRequest(r *http.Request) service.PageRequest {
	q := r.URL.Query()
	return service.PageRequest{
		Page:    queryInt(q.Get("page")),
		PerPage: queryInt(q.Get("per_page")),
	}
}

func queryInt(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}
