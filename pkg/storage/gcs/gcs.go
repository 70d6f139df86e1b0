// Package gcs implements the storage.ObjectStore interface on top of the
// Google Cloud Storage JSON API.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"google.golang.org/api/option"
	gstorage "google.golang.org/api/storage/v1"

	"github.com/tsubasakt/kaiwa/pkg/storage"
)

// Store uploads and downloads objects in a single bucket.
type Store struct {
	svc    *gstorage.Service
	bucket string
}

var _ storage.ObjectStore = (*Store)(nil)

// NewStore builds a store for the given bucket using the given client options.
func NewStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs: bucket name must not be empty")
	}
	svc, err := gstorage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: create storage service: %w", err)
	}
	return &Store{svc: svc, bucket: bucket}, nil
}

// Upload implements storage.ObjectStore.
func (s *Store) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	obj := &gstorage.Object{Name: name, ContentType: contentType}
	_, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(bytes.NewReader(data)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("gcs: upload %q: %w", name, err)
	}
	return nil
}

// Download implements storage.ObjectStore.
func (s *Store) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.svc.Objects.Get(s.bucket, name).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("gcs: download %q: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gcs: read %q: %w", name, err)
	}
	return data, nil
}

// PublicURL implements storage.ObjectStore.
func (s *Store) PublicURL(name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, name)
}

// URI implements storage.ObjectStore.
func (s *Store) URI(name string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, name)
}
