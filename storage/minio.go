package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/RigelNana/media-service/models"
	"github.com/RigelNana/media-service/pkg/metrics"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// objectAPI is the part of *minio.Client the store uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type MinIOOptions struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string
	PublicURL       string
	Normalize       bool
	Image           NormalizeOptions
}

// MinIOStore keeps assets in an S3 compatible bucket.
type MinIOStore struct {
	client objectAPI
	opts   MinIOOptions
	log    *logrus.Logger
}

func NewMinIOStore(ctx context.Context, opts MinIOOptions, log *logrus.Logger) (*MinIOStore, error) {
	// 初始化 MinIO 客户端
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return newMinIOStore(ctx, client, opts, log)
}

func newMinIOStore(ctx context.Context, client objectAPI, opts MinIOOptions, log *logrus.Logger) (*MinIOStore, error) {
	// 确保存储桶存在
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.WithField("bucket", opts.Bucket).Info("created bucket")
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &MinIOStore{client: client, opts: opts, log: log}, nil
}

func (s *MinIOStore) Provider() string { return models.ProviderMinIO }

func (s *MinIOStore) Put(ctx context.Context, obj Object) (ref models.AssetRef, err error) {
	defer func() { metrics.RecordAsset(s.Provider(), "put", err) }()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return models.AssetRef{}, fmt.Errorf("read upload: %w", err)
	}

	format, contentType := obj.Format, obj.ContentType
	var size image.Point
	// gif 保留动画，不做转码
	if s.opts.Normalize && obj.Format != "gif" {
		out, dims, nerr := normalizeImage(data, s.opts.Image)
		if nerr != nil {
			s.log.WithError(nerr).WithField("filename", obj.Filename).Warn("image normalization failed, uploading raw")
		} else {
			data, size = out, dims
			format, contentType = "jpeg", "image/jpeg"
		}
	}
	if size == (image.Point{}) {
		if cfg, _, derr := image.DecodeConfig(bytes.NewReader(data)); derr == nil {
			size = image.Point{X: cfg.Width, Y: cfg.Height}
		}
	}

	ext := obj.Ext()
	if format == "jpeg" {
		ext = ".jpg"
	}
	key := obj.Prefix + "/" + NewObjectName(obj.Prefix, ext)

	info, err := s.client.PutObject(ctx, s.opts.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"original-filename": obj.Filename},
	})
	if err != nil {
		return models.AssetRef{}, fmt.Errorf("failed to upload file to MinIO: %w", err)
	}

	ref = models.AssetRef{
		Provider:    models.ProviderMinIO,
		Key:         key,
		ContentType: contentType,
		Format:      format,
		Width:       size.X,
		Height:      size.Y,
		Bytes:       int64(len(data)),
		Attributes: map[string]interface{}{
			"bucket":            s.opts.Bucket,
			"etag":              info.ETag,
			"original_filename": obj.Filename,
		},
	}
	ref.URL = s.URLFor(ref)
	return ref, nil
}

// Delete treats a missing object as already deleted.
func (s *MinIOStore) Delete(ctx context.Context, ref models.AssetRef) (err error) {
	defer func() { metrics.RecordAsset(s.Provider(), "delete", err) }()

	err = s.client.RemoveObject(ctx, s.bucketOf(ref), ref.Key, minio.RemoveObjectOptions{})
	if err != nil && isNoSuchKey(err) {
		return nil
	}
	return err
}

func (s *MinIOStore) Exists(ctx context.Context, ref models.AssetRef) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketOf(ref), ref.Key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, err
}

func (s *MinIOStore) URLFor(ref models.AssetRef) string {
	if s.opts.PublicURL != "" {
		return s.opts.PublicURL + "/" + ref.Key
	}
	scheme := "http"
	if s.opts.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.opts.Endpoint, s.bucketOf(ref), ref.Key)
}

// records written before a bucket move still point at their original bucket
func (s *MinIOStore) bucketOf(ref models.AssetRef) string {
	if b, ok := ref.Attributes["bucket"].(string); ok && b != "" {
		return b
	}
	return s.opts.Bucket
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}
