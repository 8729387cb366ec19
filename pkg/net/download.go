package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrorURLNotFound is returned for 404 responses.
	ErrorURLNotFound = errors.New("URL not found")

	// ErrorUnauthorized is returned for 401 and 403 responses.
	ErrorUnauthorized = errors.New("not authorized")

	// retryInterval is the first wait between download attempts.
	retryInterval = 500 * time.Millisecond
)

// Download fetches url into path, retrying transient failures up to retries
// times with exponential backoff. Client errors are not retried. The file
// is written to a temporary name and renamed once complete.
func Download(ctx context.Context, client *http.Client, url, path string, retries uint64) error {
	if client == nil {
		c, err := GetHTTPClient()
		if err != nil {
			return err
		}
		client = c
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := fetch(ctx, client, url, path)
		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError && se.code != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Warn("download failed, retrying", "url", url, "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	slog.Debug("downloaded", "url", url, "path", path, "attempts", attempt)
	return nil
}

type statusError struct {
	code   int
	status string
	err    error
}

func (e *statusError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s (status: %d)", e.err, e.code)
	}
	return fmt.Sprintf("unexpected status: %s", e.status)
}

func (e *statusError) Unwrap() error { return e.err }

func fetch(ctx context.Context, client *http.Client, url, path string) (retErr error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	resp, err := client.Do(req) //nolint:gosec // G107: URL comes from operator configuration
	if err != nil {
		return fmt.Errorf("error executing HTTP request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return &statusError{code: resp.StatusCode, status: resp.Status, err: ErrorURLNotFound}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &statusError{code: resp.StatusCode, status: resp.Status, err: ErrorUnauthorized}
	default:
		PrintHTTPResponse(resp)
		return &statusError{code: resp.StatusCode, status: resp.Status}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("error creating temp file: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("error saving downloaded content to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error moving download into place: %w", err)
	}
	return nil
}
