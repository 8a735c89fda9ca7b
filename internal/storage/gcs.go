package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/RaikyD/trip-orders-service/internal/logger"
)

type GCSConfig struct {
	Bucket string
	// CDNDomain, when set, fronts the bucket for public URLs.
	CDNDomain string
	// EmulatorHost points the client at a fake-gcs-server style emulator.
	EmulatorHost  string
	PublicBaseURL string
}

type GCSStore struct {
	client *storage.Client
	cfg    GCSConfig
}

func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("gcs: bucket name is empty")
	}
	cfg.EmulatorHost = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")

	var opts []option.ClientOption
	if cfg.EmulatorHost != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	logger.Info("slip storage initialized", "backend", "gcs", "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	return &GCSStore{client: client, cfg: cfg}, nil
}

func (s *GCSStore) Store(ctx context.Context, data []byte, contentType, name string) (string, error) {
	w := s.client.Bucket(s.cfg.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs: close writer for %s: %w", name, err)
	}
	return s.PublicURL(name), nil
}

func (s *GCSStore) PublicURL(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if s.cfg.CDNDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cfg.CDNDomain, name)
	}
	if s.cfg.EmulatorHost != "" {
		base := s.cfg.PublicBaseURL
		if base == "" {
			base = s.cfg.EmulatorHost
		}
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", base, url.PathEscape(s.cfg.Bucket), url.PathEscape(name))
	}
	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.PublicBaseURL, s.cfg.Bucket, name)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.cfg.Bucket, name)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
