// Package fetch downloads source matrices over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jlehrer1/big-csv/pkg/types"
)

// Target is one file to download.
type Target struct {
	URL  string `json:"url" yaml:"url"`
	Dest string `json:"dest" yaml:"dest"`
}

// Download streams url into dest and returns the number of bytes written.
// dest only appears once the body was fully received. A nil client means
// http.DefaultClient.
func Download(ctx context.Context, client *http.Client, url, dest string) (n int64, err error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &types.ConfigError{Field: "url", Reason: err.Error()}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, fmt.Errorf("%w: get %s: %v", types.ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return 0, fmt.Errorf("get %s: %w", url, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, &types.IOError{Op: "create", Path: dest, Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err = io.Copy(tmp, resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, fmt.Errorf("%w: read %s: %v", types.ErrNetwork, url, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("%w: %s: got %d bytes, want %d", types.ErrNetwork, url, n, resp.ContentLength)
	}
	if err = tmp.Sync(); err != nil {
		return n, &types.IOError{Op: "sync", Path: tmp.Name(), Err: err}
	}
	if err = tmp.Close(); err != nil {
		return n, &types.IOError{Op: "close", Path: tmp.Name(), Err: err}
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return n, &types.IOError{Op: "rename", Path: dest, Err: err}
	}
	return n, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: %s", types.ErrNotFound, resp.Status)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", types.ErrAuth, resp.Status)
	default:
		return fmt.Errorf("%w: unexpected status %s", types.ErrNetwork, resp.Status)
	}
}

// DownloadAll fetches targets in order and stops at the first failure.
func DownloadAll(ctx context.Context, client *http.Client, targets []Target, logger *slog.Logger) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for _, tg := range targets {
		logger.Info("downloading", "url", tg.URL, "dest", tg.Dest)
		n, err := Download(ctx, client, tg.URL, tg.Dest)
		if err != nil {
			return err
		}
		logger.Debug("downloaded", "dest", tg.Dest, "bytes", n)
	}
	return nil
}

// ErrNoTargets is returned when there is nothing to download.
var ErrNoTargets = errors.New("no download targets")
