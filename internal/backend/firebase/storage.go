package firebase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"
)

// DownloadHost serves Firebase Storage download URLs.
const DownloadHost = "https://firebasestorage.googleapis.com"

// downloadTokenKey is the object metadata key Firebase resolves download
// tokens from.
const downloadTokenKey = "firebaseStorageDownloadTokens"

// ErrObjectNotFound is returned when deleting a missing object.
var ErrObjectNotFound = errors.New("object not found")

// StorageOptions configures a Storage.
type StorageOptions struct {
	Bucket string

	// Tokens authorizes uploads, typically the Identity.
	Tokens oauth2.TokenSource

	// Endpoint overrides the storage JSON API base URL.
	Endpoint string

	// HTTPClient replaces the token-authorized client.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Storage writes objects into the project's bucket.
type Storage struct {
	svc    *storage.Service
	bucket string
	log    *slog.Logger
}

// NewStorage creates a Storage.
func NewStorage(ctx context.Context, opts StorageOptions) (*Storage, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage bucket not configured")
	}
	hc := opts.HTTPClient
	if hc == nil {
		if opts.Tokens == nil {
			return nil, errors.New("storage requires a token source")
		}
		hc = oauth2.NewClient(ctx, opts.Tokens)
	}
	clientOpts := []option.ClientOption{option.WithHTTPClient(hc)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	svc, err := storage.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Storage{svc: svc, bucket: opts.Bucket, log: log}, nil
}

// Put uploads data under path and returns its public download URL.
func (s *Storage) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	token := uuid.NewString()
	obj := &storage.Object{
		Name:        path,
		ContentType: contentType,
		Metadata:    map[string]string{downloadTokenKey: token},
	}
	_, err := s.svc.Objects.Insert(s.bucket, obj).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	s.log.Debug("uploaded object", "path", path, "bytes", len(data))
	return DownloadURL(s.bucket, path, token), nil
}

// Delete removes the object at path.
func (s *Storage) Delete(ctx context.Context, path string) error {
	err := s.svc.Objects.Delete(s.bucket, path).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return ErrObjectNotFound
		}
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// DownloadURL builds the token-authorized download URL of an object.
func DownloadURL(bucket, path, token string) string {
	return fmt.Sprintf("%s/v0/b/%s/o/%s?alt=media&token=%s",
		DownloadHost, bucket, url.PathEscape(path), url.QueryEscape(token))
}
