package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bigkaa/librarium/internal/objectstore"
)

// AssetService stores uploaded covers, trailers and university cards.
type AssetService struct {
	uploader objectstore.Uploader
	logger   *slog.Logger
}

// NewAssetService creates the asset service. A nil uploader disables uploads.
func NewAssetService(uploader objectstore.Uploader, logger *slog.Logger) *AssetService {
	return &AssetService{
		uploader: uploader,
		logger:   logger.With(slog.String("component", "asset_service")),
	}
}

// Enabled reports whether object storage is configured.
func (s *AssetService) Enabled() bool {
	return s.uploader != nil
}

// Upload stores r as an asset of the given kind and returns its public URL.
func (s *AssetService) Upload(ctx context.Context, kind, filename, contentType string, r io.Reader) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("%w: uploads are not configured", ErrStorageUnavailable)
	}
	k, err := objectstore.ParseKind(kind)
	if err != nil {
		return "", fmt.Errorf("%w: kind must be cover, trailer or card", ErrValidation)
	}

	url, err := s.uploader.Upload(ctx, k, filename, contentType, r)
	switch {
	case err == nil:
		return url, nil
	case errors.Is(err, objectstore.ErrUnsupportedType), errors.Is(err, objectstore.ErrUnsupportedKind):
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	case errors.Is(err, objectstore.ErrUnavailable):
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return "", err
}
