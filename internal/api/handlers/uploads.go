// uploads.go serves multipart uploads of covers, trailers and university cards.
package handlers

import (
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/librarium/internal/api/errors"
	"github.com/bigkaa/librarium/internal/objectstore"
)

// UploadAsset serves POST /api/v1/admin/uploads (multipart: kind, file).
func (h *APIHandler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, "")
}

// UploadCard serves POST /api/v1/uploads/card for sign-up clients.
func (h *APIHandler) UploadCard(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, string(objectstore.KindCard))
}

// upload stores the "file" part. An empty kind is read from the form.
func (h *APIHandler) upload(w http.ResponseWriter, r *http.Request, kind string) {
	if !h.assets.Enabled() {
		apierrors.StorageUnavailable(w, "Uploads are not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, objectstore.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.WriteError(w, http.StatusRequestEntityTooLarge, apierrors.CodeValidationError, "File exceeds 50 MB")
			return
		}
		apierrors.ValidationError(w, "Invalid multipart form: "+err.Error())
		return
	}
	if kind == "" {
		kind = r.FormValue("kind")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Form field \"file\" is required")
		return
	}
	defer file.Close()

	if header.Size > objectstore.MaxUploadSize {
		apierrors.WriteError(w, http.StatusRequestEntityTooLarge, apierrors.CodeValidationError, "File exceeds 50 MB")
		return
	}

	url, err := h.assets.Upload(r.Context(), kind, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.writeServiceError(w, r, "upload_"+kind, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}
