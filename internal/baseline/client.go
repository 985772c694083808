// Package baseline fetches reference screenshots from remote artifact
// storage with retry and circuit breaking.
package baseline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/snapdiff/snapdiff/internal/errors"
	"github.com/snapdiff/snapdiff/internal/resilience"
)

// maxBaselineBytes bounds a single fetched artifact.
const maxBaselineBytes = 64 << 20

// Client retrieves baseline images by name from an HTTP artifact store.
type Client struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// New creates a baseline client for the given store URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry:   resilience.FetchRetryConfig(),
		breaker: resilience.NewBreaker(resilience.DefaultConfig()),
	}
}

// WithRetry overrides the retry settings.
func (c *Client) WithRetry(cfg resilience.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// FetchData downloads the raw encoded baseline artifact. Transient HTTP
// failures (429/5xx, transport errors) are retried with backoff behind a
// circuit breaker.
func (c *Client) FetchData(ctx context.Context, name string) ([]byte, error) {
	u := c.baseURL + "/" + url.PathEscape(name)

	var data []byte
	err := resilience.Retry(ctx, c.retry, func() error {
		fetched, err := resilience.ExecuteWithResult(c.breaker, func() ([]byte, error) {
			return c.get(ctx, u)
		})
		if err != nil {
			return err
		}
		data = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Fetch downloads and decodes a baseline image.
func (c *Client) Fetch(ctx context.Context, name string) (image.Image, error) {
	data, err := c.FetchData(ctx, name)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeDecodeFailure, "decode baseline %q", name)
	}
	return img, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBaselineFailed, "build request")
	}
	req.Header.Set("Accept", "image/png, image/jpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport errors are worth retrying.
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "baseline fetch").WithMetadata("url", u)
	}
	defer resp.Body.Close()

	slog.Debug("baseline fetch", "url", u, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBaselineBytes))
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "read baseline body")
		}
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.Newf(apperrors.CodeNotFound, "baseline not found: %s", u)
	case resilience.IsRetryableStatus(resp.StatusCode):
		return nil, apperrors.Newf(apperrors.CodeUnavailable, "baseline store returned %d", resp.StatusCode)
	default:
		return nil, apperrors.New(apperrors.CodeBaselineFailed,
			fmt.Sprintf("baseline store returned %d", resp.StatusCode))
	}
}
