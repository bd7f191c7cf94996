// Package upload copies pipeline outputs to a Google Cloud Storage bucket.
//
// Credentials are always passed in explicitly; the client never falls back to
// ambient application-default credentials.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jlehrer1/big-csv/pkg/types"
)

// Uploader copies one local file to an object key.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, key string) error
}

// Credentials selects how the client authenticates. Exactly one of File,
// JSON or Anonymous must be set.
type Credentials struct {
	File      string // service account key file
	JSON      []byte // service account key contents
	Anonymous bool   // no authentication, for emulators and public buckets
}

// Options configures a Client.
type Options struct {
	Bucket      string
	Endpoint    string // optional API endpoint override
	Credentials Credentials
	Logger      *slog.Logger
}

// Client uploads files to one bucket.
type Client struct {
	storageClient *storage.Client
	bucket        string
	logger        *slog.Logger
}

// NewClient builds a storage client from explicit credentials.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, &types.ConfigError{Field: "bucket", Reason: "must not be empty"}
	}
	clientOpts, err := credentialOptions(opts.Credentials)
	if err != nil {
		return nil, err
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	storageClient, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w: %v", types.ErrAuth, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{storageClient: storageClient, bucket: opts.Bucket, logger: logger}, nil
}

func credentialOptions(c Credentials) ([]option.ClientOption, error) {
	set := 0
	for _, ok := range []bool{c.File != "", len(c.JSON) > 0, c.Anonymous} {
		if ok {
			set++
		}
	}
	switch {
	case set == 0:
		return nil, &types.ConfigError{Field: "credentials", Reason: "must name a key file, key JSON or anonymous access"}
	case set > 1:
		return nil, &types.ConfigError{Field: "credentials", Reason: "only one credential source may be set"}
	}

	switch {
	case c.Anonymous:
		return []option.ClientOption{option.WithoutAuthentication()}, nil
	case len(c.JSON) > 0:
		return []option.ClientOption{option.WithCredentialsJSON(c.JSON)}, nil
	}
	if _, err := os.Stat(c.File); err != nil {
		return nil, &types.ConfigError{Field: "credentials", Reason: "service account key not found at " + c.File}
	}
	return []option.ClientOption{option.WithCredentialsFile(c.File)}, nil
}

// Bucket returns the target bucket name.
func (c *Client) Bucket() string { return c.bucket }

// UploadFile copies localPath to key. Failures are classified into
// ErrAuth, ErrNotFound or ErrNetwork where possible.
func (c *Client) UploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &types.IOError{Op: "open", Path: localPath, Err: err}
	}
	defer f.Close()

	w := c.storageClient.Bucket(c.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("upload %s to gs://%s/%s: %w", localPath, c.bucket, key, Classify(err))
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s to gs://%s/%s: %w", localPath, c.bucket, key, Classify(err))
	}
	c.logger.Debug("uploaded object", "path", localPath, "bucket", c.bucket, "key", key)
	return nil
}

// UploadDir uploads every regular file in localDir under prefix.
func (c *Client) UploadDir(ctx context.Context, localDir, prefix string) (int, error) {
	return UploadDir(ctx, c, localDir, prefix)
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	return c.storageClient.Close()
}

// ErrNoArtifacts is returned by UploadDir when the directory holds nothing
// to upload, typically because the chunks were already purged.
var ErrNoArtifacts = errors.New("no artifacts to upload")
