// books.go serves the catalog and the borrow endpoint.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/librarium/internal/service"
)

// ListBooks serves GET /api/v1/books?search=&page=&per_page=.
func (h *APIHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.Search(r.Context(), r.URL.Query().Get("search"), pageRequest(r))
	if err != nil {
		h.writeServiceError(w, r, "search_books", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, mapBook))
}

// LatestBooks serves GET /api/v1/books/latest?limit=.
func (h *APIHandler) LatestBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.Latest(r.Context(), queryInt(r.URL.Query().Get("limit")))
	if err != nil {
		h.writeServiceError(w, r, "latest_books", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapBooks(books)})
}

// GetBook serves GET /api/v1/books/{id}.
func (h *APIHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "get_book", err)
		return
	}
	writeJSON(w, http.StatusOK, mapBook(book))
}

// BorrowBook serves POST /api/v1/books/{id}/borrow for the signed-in user.
func (h *APIHandler) BorrowBook(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	rec, err := h.lending.Borrow(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, "borrow", err)
		return
	}
	writeJSON(w, http.StatusCreated, mapBorrowRecord(rec))
}

// --- Admin ---

// AdminListBooks serves GET /api/v1/admin/books, newest first.
func (h *APIHandler) AdminListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := h.catalog.AdminList(r.Context(), r.URL.Query().Get("search"), pageRequest(r))
	if err != nil {
		h.writeServiceError(w, r, "admin_list_books", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPage(page, mapBook))
}

// CreateBook serves POST /api/v1/admin/books.
func (h *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req service.BookInput
	if !decodeJSON(w, r, &req) {
		return
	}

	book, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "create_book", err)
		return
	}
	writeJSON(w, http.StatusCreated, mapBook(book))
}

// UpdateBook serves PUT /api/v1/admin/books/{id}. total_copies is fixed at
// creation and may only be omitted or repeated.
func (h *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	var req service.BookInput
	if !decodeJSON(w, r, &req) {
		return
	}

	book, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeServiceError(w, r, "update_book", err)
		return
	}
	writeJSON(w, http.StatusOK, mapBook(book))
}

// DeleteBook serves DELETE /api/v1/admin/books/{id}.
func (h *APIHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, "delete_book", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
