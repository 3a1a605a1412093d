package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RigelNana/media-service/models"
	"github.com/google/uuid"
)

// Store persists image bytes and hands back a reference to them.
type Store interface {
	Provider() string
	Put(ctx context.Context, obj Object) (models.AssetRef, error)
	// Delete removes the referenced asset. A missing asset is not an error.
	Delete(ctx context.Context, ref models.AssetRef) error
	Exists(ctx context.Context, ref models.AssetRef) (bool, error)
	URLFor(ref models.AssetRef) string
}

// Object is one validated upload on its way into a Store.
type Object struct {
	Prefix      string
	Filename    string
	ContentType string
	Format      string
	Size        int64
	Body        io.Reader
}

// Ext returns the extension a stored copy of obj should carry.
func (o Object) Ext() string {
	switch o.Format {
	case "":
		return ""
	case "jpeg":
		return ".jpg"
	default:
		return "." + o.Format
	}
}

// NewObjectName 生成唯一文件名: <prefix>-<unix毫秒>-<12位随机十六进制><ext>
func NewObjectName(prefix, ext string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s-%d-%s%s", prefix, time.Now().UnixMilli(), id[:12], ext)
}
