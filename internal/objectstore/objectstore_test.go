package objectstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	storage "github.com/supabase-community/storage-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	bucket      string
	path        string
	body        string
	contentType string
	err         error
}

func (f *fakeBucket) UploadFile(bucketId string, relativePath string, data io.Reader, opts ...storage.FileOptions) (storage.FileUploadResponse, error) {
	if f.err != nil {
		return storage.FileUploadResponse{}, f.err
	}
	b, _ := io.ReadAll(data)
	f.bucket = bucketId
	f.path = relativePath
	f.body = string(b)
	if len(opts) > 0 && opts[0].ContentType != nil {
		f.contentType = *opts[0].ContentType
	}
	return storage.FileUploadResponse{}, nil
}

func newTestStore(client bucketClient) *SupabaseStore {
	s := newSupabaseStore(client, "https://abc.supabase.co", "library", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.newID = func() string { return "0f4d7f4e-1111-2222-3333-444455556666" }
	return s
}

func TestUpload_Cover(t *testing.T) {
	fake := &fakeBucket{}
	s := newTestStore(fake)

	url, err := s.Upload(context.Background(), KindCover, "Dune.JPG", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "library", fake.bucket)
	assert.Equal(t, "covers/0f4d7f4e-1111-2222-3333-444455556666.jpg", fake.path)
	assert.Equal(t, "jpeg-bytes", fake.body)
	assert.Equal(t, "image/jpeg", fake.contentType)
	assert.Equal(t, "https://abc.supabase.co/storage/v1/object/public/library/covers/0f4d7f4e-1111-2222-3333-444455556666.jpg", url)
}

func TestUpload_TrailerRequiresVideo(t *testing.T) {
	s := newTestStore(&fakeBucket{})

	_, err := s.Upload(context.Background(), KindTrailer, "clip.png", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	url, err := s.Upload(context.Background(), KindTrailer, "clip.mp4", "video/mp4", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Contains(t, url, "/trailers/")
}

func TestUpload_CardStripsSuspiciousExtension(t *testing.T) {
	fake := &fakeBucket{}
	s := newTestStore(fake)

	_, err := s.Upload(context.Background(), KindCard, `C:\scans\card.png?x=1`, "image/png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "cards/0f4d7f4e-1111-2222-3333-444455556666", fake.path)
}

func TestUpload_BackendFailure(t *testing.T) {
	s := newTestStore(&fakeBucket{err: errors.New("503 service unavailable")})

	_, err := s.Upload(context.Background(), KindCover, "a.png", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUpload_Rejections(t *testing.T) {
	s := newTestStore(&fakeBucket{})

	_, err := s.Upload(context.Background(), Kind("avatar"), "a.png", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = s.Upload(context.Background(), KindCover, "a.png", "not a type", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Upload(ctx, KindCover, "a.png", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseKind(t *testing.T) {
	for _, in := range []string{"cover", " Trailer ", "CARD"} {
		_, err := ParseKind(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseKind("")
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestHealthURL(t *testing.T) {
	s := NewSupabaseStore("https://abc.supabase.co/", "key", "library", slog.Default())
	assert.Equal(t, "https://abc.supabase.co/storage/v1/status", s.HealthURL())
}
