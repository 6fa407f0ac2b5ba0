package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/pesio-ai/be-ap-capture/internal/apperrors"
)

// GCSBlobStore stores original documents in a Google Cloud Storage bucket.
// Locators have the form gs://<bucket>/<object>.
type GCSBlobStore struct {
	client *storage.Client
	bucket string
	log    zerolog.Logger
}

// NewGCSBlobStore creates a blob store backed by GCS. Credentials come from
// ADC unless explicit JSON is provided.
func NewGCSBlobStore(ctx context.Context, bucket, credentialsJSON string, log zerolog.Logger) (*GCSBlobStore, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodePersistence, "create gcs client")
	}
	return &GCSBlobStore{client: client, bucket: bucket, log: log}, nil
}

// Put writes the document once and returns its locator. The core never reads
// stored bytes back.
func (s *GCSBlobStore) Put(ctx context.Context, data []byte, path, contentType string) (string, error) {
	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", apperrors.Wrap(err, apperrors.ErrCodePersistence, "write document to gcs")
	}
	if err := wc.Close(); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodePersistence, "finalize gcs write")
	}

	locator := fmt.Sprintf("gs://%s/%s", s.bucket, path)
	s.log.Debug().Str("locator", locator).Int("bytes", len(data)).Msg("document stored")
	return locator, nil
}

// SignedURL returns a time-limited download URL for a stored document.
func (s *GCSBlobStore) SignedURL(_ context.Context, locator string, ttl time.Duration) (string, error) {
	object, ok := strings.CutPrefix(locator, "gs://"+s.bucket+"/")
	if !ok {
		return "", apperrors.InvalidInput("locator", "not in this bucket")
	}

	url, err := s.client.Bucket(s.bucket).SignedURL(object, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodePersistence, "sign document url")
	}
	return url, nil
}

// Close releases the underlying GCS client.
func (s *GCSBlobStore) Close() error {
	return s.client.Close()
}
