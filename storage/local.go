package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/RigelNana/media-service/models"
	"github.com/RigelNana/media-service/pkg/metrics"
	_ "golang.org/x/image/webp"
)

const maxNameAttempts = 5

// LocalStore keeps assets as flat files under one directory, served by the
// HTTP layer under /uploads/.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir %q: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	return &LocalStore{root: absRoot, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *LocalStore) Provider() string { return models.ProviderLocal }

// Root is the directory assets are written to.
func (l *LocalStore) Root() string { return l.root }

func (l *LocalStore) abs(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty asset key")
	}
	joined := filepath.Join(l.root, filepath.Clean(filepath.FromSlash(key)))
	rel, err := filepath.Rel(l.root, joined)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("asset key %q escapes upload dir", key)
	}
	return joined, nil
}

func (l *LocalStore) Put(ctx context.Context, obj Object) (ref models.AssetRef, err error) {
	defer func() { metrics.RecordAsset(l.Provider(), "put", err) }()

	if err := ctx.Err(); err != nil {
		return models.AssetRef{}, err
	}

	var (
		f    *os.File
		key  string
		dest string
	)
	// O_EXCL: never overwrite an existing asset, pick a new name instead
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		key = NewObjectName(obj.Prefix, obj.Ext())
		dest, err = l.abs(key)
		if err != nil {
			return models.AssetRef{}, err
		}
		f, err = os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return models.AssetRef{}, fmt.Errorf("create %q: %w", key, err)
		}
	}
	if f == nil {
		return models.AssetRef{}, fmt.Errorf("could not allocate a unique name after %d attempts", maxNameAttempts)
	}

	// keep the first bytes around for dimension sniffing
	var head bytes.Buffer
	n, werr := io.Copy(f, io.TeeReader(obj.Body, &limitedWriter{buf: &head, max: 64 << 10}))
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = ctx.Err()
	}
	if werr != nil {
		os.Remove(dest) //nolint:errcheck
		return models.AssetRef{}, fmt.Errorf("write %q: %w", key, werr)
	}

	ref = models.AssetRef{
		Provider:    models.ProviderLocal,
		Key:         key,
		ContentType: obj.ContentType,
		Format:      obj.Format,
		Bytes:       n,
		Attributes:  map[string]interface{}{"original_filename": obj.Filename},
	}
	if cfg, _, derr := image.DecodeConfig(bytes.NewReader(head.Bytes())); derr == nil {
		ref.Width, ref.Height = cfg.Width, cfg.Height
	}
	ref.URL = l.URLFor(ref)
	return ref, nil
}

// Delete silently succeeds on ENOENT.
func (l *LocalStore) Delete(ctx context.Context, ref models.AssetRef) (err error) {
	defer func() { metrics.RecordAsset(l.Provider(), "delete", err) }()

	p, err := l.abs(ref.Key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *LocalStore) Exists(ctx context.Context, ref models.AssetRef) (bool, error) {
	p, err := l.abs(ref.Key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (l *LocalStore) URLFor(ref models.AssetRef) string {
	return l.baseURL + "/uploads/" + ref.Key
}

// limitedWriter buffers up to max bytes and discards the rest.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
