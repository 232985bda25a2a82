// Package storage uploads local files to durable remote object storage and
// deletes them again by reference.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"bookvault/pkg/domain"
)

// AssetStore provides upload and delete access to remote asset storage.
type AssetStore interface {
	Upload(ctx context.Context, localPath, mimeType, folder string, category domain.AssetCategory) (domain.AssetRef, error)
	Delete(ctx context.Context, ref domain.AssetRef) error
}

// MinioAssetStore implements AssetStore for MinIO/S3 compatible storage.
//
// Object identifiers follow the upstream media-host convention: the public ID
// is the staged filename with its extension stripped, and the delivery URL
// always carries the format extension. Raw assets keep that extension in the
// object key as well, image assets do not.
type MinioAssetStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewMinioAssetStore connects to MinIO and ensures the bucket exists.
func NewMinioAssetStore(endpoint, accessKey, secretKey, bucket, publicBaseURL string, useSSL bool) (*MinioAssetStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	baseURL := strings.TrimRight(publicBaseURL, "/")
	if baseURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + endpoint
	}
	return &MinioAssetStore{client: client, bucket: bucket, baseURL: baseURL}, nil
}

// Upload copies a staged local file into the remote store under the given
// logical folder and returns a stable public reference.
func (m *MinioAssetStore) Upload(ctx context.Context, localPath, mimeType, folder string, category domain.AssetCategory) (domain.AssetRef, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return domain.AssetRef{}, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return domain.AssetRef{}, fmt.Errorf("stat staged file: %w", err)
	}

	publicID := PublicIDFromPath(localPath)
	format := FormatFromMime(mimeType)
	key := ObjectKey(folder, publicID, format, category)

	_, err = m.client.PutObject(ctx, m.bucket, key, f, info.Size(), minio.PutObjectOptions{ContentType: mimeType})
	if err != nil {
		return domain.AssetRef{}, fmt.Errorf("upload asset: %w", err)
	}
	return domain.AssetRef{
		URL:      m.baseURL + "/" + m.bucket + "/" + path.Join(folder, publicID+"."+format),
		Category: category,
	}, nil
}

// Delete removes the remote object referenced by ref. The delete key is
// derived from the reference URL.
func (m *MinioAssetStore) Delete(ctx context.Context, ref domain.AssetRef) error {
	key, err := DeleteKeyFromURL(ref.URL, ref.Category)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

// PublicIDFromPath returns the base name of a staged file with its extension
// stripped. It is the identifier the remote store files the asset under.
func PublicIDFromPath(localPath string) string {
	base := filepath.Base(localPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FormatFromMime returns the subtype of a mime type, e.g. "pdf" for
// "application/pdf". Falls back to "bin" when the type carries no subtype.
func FormatFromMime(mimeType string) string {
	if idx := strings.LastIndex(mimeType, "/"); idx >= 0 && idx+1 < len(mimeType) {
		return mimeType[idx+1:]
	}
	return "bin"
}

// ObjectKey builds the remote identifier for an asset. Raw assets keep the
// format extension in the key, other categories store under the bare public ID.
func ObjectKey(folder, publicID, format string, category domain.AssetCategory) string {
	if category == domain.CategoryRaw {
		return path.Join(folder, publicID+"."+format)
	}
	return path.Join(folder, publicID)
}

// DeleteKeyFromURL reverses a public reference URL into the delete key. The
// key is the last two path segments; for the raw category the final segment
// keeps its extension, for every other category the extension is stripped.
// The asymmetry mirrors the remote identifier convention and must hold for
// deletes to target the object written at upload time.
func DeleteKeyFromURL(rawURL string, category domain.AssetCategory) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse asset url: %w", err)
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 2 {
		return "", errors.New("asset url has too few path segments")
	}
	folder := segments[len(segments)-2]
	name := segments[len(segments)-1]
	if category != domain.CategoryRaw {
		name = strings.TrimSuffix(name, path.Ext(name))
	}
	if folder == "" || name == "" {
		return "", errors.New("asset url has empty path segments")
	}
	return folder + "/" + name, nil
}
