// Package blobstore uploads crop and disease images and returns public URLs.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const (
	PrefixCropImages    = "crop-images"
	PrefixDiseaseImages = "disease-images"
)

type Store interface {
	// Put writes r under prefix and returns the URL it is served from.
	Put(ctx context.Context, prefix, filename, contentType string, r io.Reader) (string, error)
}

// objectName keeps the extension of filename and makes the rest unique.
func objectName(prefix, filename string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 6 {
		ext = ""
	}
	return path.Join(prefix, fmt.Sprintf("%s-%s%s", now.UTC().Format("20060102-150405"), uuid.NewString()[:8], ext))
}

// Local stores files under Dir, served by the HTTP layer at BaseURL.
type Local struct {
	Dir     string
	BaseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	if baseURL == "" {
		baseURL = "/uploads"
	}
	return &Local{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Put(ctx context.Context, prefix, filename, _ string, r io.Reader) (string, error) {
	name := objectName(prefix, filename, time.Now())
	full := filepath.Join(l.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create prefix directory: %w", err)
	}
	dst, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, r); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return l.BaseURL + "/" + name, nil
}

// GCS stores objects in a Google Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	bucket string
	public string
}

// NewGCS uses application default credentials unless credentialsFile is set.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, public: "https://storage.googleapis.com/" + bucket}, nil
}

func (g *GCS) Put(ctx context.Context, prefix, filename, contentType string, r io.Reader) (string, error) {
	name := objectName(prefix, filename, time.Now())
	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	w.CacheControl = "public, max-age=86400"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return g.public + "/" + name, nil
}

func (g *GCS) Close() error { return g.client.Close() }
