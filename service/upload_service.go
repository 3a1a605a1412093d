package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/RigelNana/media-service/models"
	"github.com/RigelNana/media-service/storage"
)

// FileUpload is one image as received from a client.
type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader validates uploads and writes them to the asset store.
type Uploader struct {
	store    storage.Store
	maxBytes int64
	allowed  []string
}

func NewUploader(store storage.Store, maxBytes int64, allowed []string) *Uploader {
	return &Uploader{store: store, maxBytes: maxBytes, allowed: allowed}
}

func (u *Uploader) Store() storage.Store { return u.store }

func (u *Uploader) MaxBytes() int64 { return u.maxBytes }

// TooLargeMessage is the client-facing message for oversized uploads.
func (u *Uploader) TooLargeMessage() string {
	mb := strconv.FormatFloat(float64(u.maxBytes)/(1<<20), 'f', -1, 64)
	return fmt.Sprintf("File size too large. Max %sMB allowed.", mb)
}

func (u *Uploader) typeMessage() string {
	return fmt.Sprintf("Only image files (%s) are allowed!", strings.Join(u.allowed, ", "))
}

func canonicalFormat(t string) string {
	t = strings.ToLower(t)
	if t == "jpg" || t == "pjpeg" {
		return "jpeg"
	}
	return t
}

func (u *Uploader) allows(t string) bool {
	for _, a := range u.allowed {
		if canonicalFormat(a) == canonicalFormat(t) {
			return true
		}
	}
	return false
}

// format returns the canonical image format named by both the filename
// extension and the declared content type, or "" if they are disallowed or
// disagree.
func (u *Uploader) format(f *FileUpload) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Filename)), ".")
	if ext == "" || !u.allows(ext) {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(f.ContentType)
	if err != nil {
		return ""
	}
	sub, ok := strings.CutPrefix(mediaType, "image/")
	if !ok || !u.allows(sub) {
		return ""
	}
	if canonicalFormat(ext) != canonicalFormat(sub) {
		return ""
	}
	return canonicalFormat(ext)
}

// Upload checks f and stores it under kind's prefix.
func (u *Uploader) Upload(ctx context.Context, kind models.Kind, f *FileUpload) (models.AssetRef, error) {
	if f == nil || f.Body == nil {
		return models.AssetRef{}, models.NewValidationError("Image is required")
	}
	if f.Size > u.maxBytes {
		return models.AssetRef{}, models.NewValidationError(u.TooLargeMessage())
	}
	format := u.format(f)
	if format == "" {
		return models.AssetRef{}, models.NewValidationError(u.typeMessage())
	}

	ref, err := u.store.Put(ctx, storage.Object{
		Prefix:      kind.Spec().AssetPrefix,
		Filename:    filepath.Base(f.Filename),
		ContentType: "image/" + format,
		Format:      format,
		Size:        f.Size,
		Body:        &sizeGuard{r: f.Body, remaining: u.maxBytes},
	})
	if errors.Is(err, errTooLarge) {
		return models.AssetRef{}, models.NewValidationError(u.TooLargeMessage())
	}
	if err != nil {
		return models.AssetRef{}, &StorageError{Op: "put", Err: err}
	}
	return ref, nil
}

// Discard deletes ref from the asset store.
func (u *Uploader) Discard(ctx context.Context, ref models.AssetRef) error {
	if ref.IsZero() {
		return nil
	}
	if err := u.store.Delete(ctx, ref); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

var errTooLarge = errors.New("upload exceeds size limit")

// sizeGuard fails the read once more than remaining bytes arrive, so a body
// larger than its declared size never lands in the store.
type sizeGuard struct {
	r         io.Reader
	remaining int64
}

func (g *sizeGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	g.remaining -= int64(n)
	if g.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}
