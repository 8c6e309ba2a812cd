// records.go serves borrow record endpoints.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/librarium/internal/service"
)

// MyBorrowRecords serves GET /api/v1/me/borrow-records.
func (h *APIHandler) MyBorrowRecords(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	items, err := h.lending.MyRecords(r.Context(), p.UserID)
	if err != nil {
		h.writeServiceError(w, r, "my_records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapRecordItems(items)})
}

// ListBorrowRecords serves GET /api/v1/admin/borrow-records?search=&status=&page=.
func (h *APIHandler) ListBorrowRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.lending.ListRecords(r.Context(), service.RecordListFilter{
		Query:       q.Get("search"),
		Status:      q.Get("status"),
		PageRequest: pageRequest(r),
	})
	if err != nil {
		h.writeServiceError(w, r, "list_records", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, mapRecordItem))
}

// GetBorrowRecord serves GET /api/v1/admin/borrow-records/{id}.
func (h *APIHandler) GetBorrowRecord(w http.ResponseWriter, r *http.Request) {
	item, err := h.lending.GetRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get_record", err)
		return
	}
	writeJSON(w, http.StatusOK, mapRecordItem(*item))
}

// ReturnBorrowRecord serves POST /api/v1/admin/borrow-records/{id}/return.
func (h *APIHandler) ReturnBorrowRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.lending.MarkReturned(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "mark_returned", err)
		return
	}
	writeJSON(w, http.StatusOK, mapBorrowRecord(rec))
}
