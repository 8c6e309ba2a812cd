// Package objectstore uploads book covers, trailers and university cards to
// Supabase Storage and returns their public URLs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"
)

// Kind selects the folder inside the bucket and the accepted media types.
type Kind string

const (
	KindCover   Kind = "cover"
	KindTrailer Kind = "trailer"
	KindCard    Kind = "card"
)

// MaxUploadSize bounds a single object.
const MaxUploadSize = 50 << 20

var (
	// ErrUnsupportedKind is returned for an unknown Kind.
	ErrUnsupportedKind = errors.New("unsupported upload kind")
	// ErrUnsupportedType is returned when the content type does not fit the kind.
	ErrUnsupportedType = errors.New("unsupported content type")
	// ErrUnavailable wraps every failure reported by the storage backend.
	ErrUnavailable = errors.New("object storage unavailable")
)

// ParseKind validates a kind received from a client.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindCover, KindTrailer, KindCard:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, s)
}

// folder maps a kind to its prefix inside the bucket.
func (k Kind) folder() string {
	switch k {
	case KindCover:
		return "covers"
	case KindTrailer:
		return "trailers"
	default:
		return "cards"
	}
}

// accepts reports whether contentType fits the kind.
func (k Kind) accepts(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if k == KindTrailer {
		return strings.HasPrefix(mediaType, "video/")
	}
	return strings.HasPrefix(mediaType, "image/")
}

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, kind Kind, filename, contentType string, r io.Reader) (string, error)
}

// bucketClient is the subset of *storage.Client used here.
type bucketClient interface {
	UploadFile(bucketId string, relativePath string, data io.Reader, fileOptions ...storage.FileOptions) (storage.FileUploadResponse, error)
}

// SupabaseStore uploads into a single public bucket.
type SupabaseStore struct {
	client  bucketClient
	baseURL string
	bucket  string
	newID   func() string
	logger  *slog.Logger
}

// NewSupabaseStore builds a store for the project at baseURL.
func NewSupabaseStore(baseURL, key, bucket string, logger *slog.Logger) *SupabaseStore {
	baseURL = strings.TrimRight(baseURL, "/")
	return newSupabaseStore(storage.NewClient(baseURL+"/storage/v1", key, nil), baseURL, bucket, logger)
}

func newSupabaseStore(client bucketClient, baseURL, bucket string, logger *slog.Logger) *SupabaseStore {
	return &SupabaseStore{
		client:  client,
		baseURL: baseURL,
		bucket:  bucket,
		newID:   uuid.NewString,
		logger:  logger.With(slog.String("component", "objectstore")),
	}
}

// Upload writes r under <folder>/<uuid><ext> and returns the public URL.
// Callers bound r to MaxUploadSize.
func (s *SupabaseStore) Upload(ctx context.Context, kind Kind, filename, contentType string, r io.Reader) (string, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return "", err
	}
	if !kind.accepts(contentType) {
		return "", fmt.Errorf("%w: %q for %s", ErrUnsupportedType, contentType, kind)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	objectPath := s.objectPath(kind, filename)
	ct := contentType
	if _, err := s.client.UploadFile(s.bucket, objectPath, r, storage.FileOptions{ContentType: &ct}); err != nil {
		s.logger.Error("Upload failed",
			slog.String("kind", string(kind)),
			slog.String("path", objectPath),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.logger.Info("Object uploaded",
		slog.String("kind", string(kind)),
		slog.String("path", objectPath),
	)
	return s.PublicURL(objectPath), nil
}

// PublicURL returns the URL of an object in the public bucket.
func (s *SupabaseStore) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, objectPath)
}

// HealthURL is probed by dependency health checks.
func (s *SupabaseStore) HealthURL() string {
	return s.baseURL + "/storage/v1/status"
}

func (s *SupabaseStore) objectPath(kind Kind, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if len(ext) > 10 || strings.ContainsAny(ext, " ?#%") {
		ext = ""
	}
	return fmt.Sprintf("%s/%s%s", kind.folder(), s.newID(), ext)
}
