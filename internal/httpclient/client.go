// Package httpclient implements the SDK's HTTPS-only HTTP client (spec.md
// §4.5, C6): range requests, progress reporting, and cooperative
// cancellation, layered on the teacher's pooled-transport pattern
// (pipeline/httpclient.go's NewPooledHTTPClient).
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
)

// Client is an HTTPS-only HTTP client used by the download engine and the
// model registry's remote reads.
type Client struct {
	http *http.Client
}

// New creates a pooled HTTPS client with the teacher's tuned transport
// settings (connection reuse, HTTP/2, idle timeouts).
func New(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:          32,
				MaxIdleConnsPerHost:   32,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ForceAttemptHTTP2:     true,
			},
			CheckRedirect: requireHTTPSRedirects,
		},
	}
}

func requireHTTPSRedirects(req *http.Request, via []*http.Request) error {
	if req.URL.Scheme != "https" {
		return fmt.Errorf("redirect to non-https URL %q rejected", req.URL.String())
	}
	if len(via) >= 10 {
		return http.ErrUseLastResponse
	}
	return nil
}

// ValidateHTTPS rejects any URL whose scheme is not https, with a message
// mentioning HTTPS as required by spec.md's testable property 12.
func ValidateHTTPS(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return aierr.New(aierr.InvalidInputParameterValue, "malformed URL; HTTPS URLs only are accepted", rawURL)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return aierr.New(aierr.InvalidInputParameterValue, fmt.Sprintf("scheme %q rejected; only HTTPS URLs are accepted", u.Scheme), rawURL)
	}
	return nil
}

// ProgressFunc is invoked with the cumulative number of bytes received so
// far. Calls are monotonically non-decreasing.
type ProgressFunc func(totalDownloaded int64)

// GetRange issues a GET request, optionally resuming from byte offset
// rangeStart (0 means from the beginning), and streams the body to dst in
// fixed-size chunks, invoking onProgress after each chunk and checking ctx
// for cancellation between chunks.
func GetRange(ctx context.Context, c *Client, rawURL string, rangeStart int64, dst io.Writer, chunkSize int, onProgress ProgressFunc) (int64, error) {
	if err := ValidateHTTPS(rawURL); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, aierr.New(aierr.InvalidInputParameterValue, "could not build HTTP request", err.Error())
	}
	if rangeStart > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", rangeStart))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, aierr.New(aierr.NetworkHTTPError, fmt.Sprintf("HTTP %d", resp.StatusCode), string(body))
	}

	if chunkSize <= 0 {
		chunkSize = 8192
	}
	buf := make([]byte, chunkSize)
	var total int64 = rangeStart

	for {
		select {
		case <-ctx.Done():
			return total, aierr.New(aierr.OperationCancelled, "download cancelled", "")
		default:
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, aierr.New(aierr.StorageReadError, "failed writing downloaded chunk", werr.Error())
			}
			total += int64(n)
			if onProgress != nil {
				onProgress(total)
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, classifyTransportError(rerr)
		}
	}
}

// Get performs a simple HTTPS GET and returns the response body bytes,
// used for remote registry metadata reads.
func Get(ctx context.Context, c *Client, rawURL string) ([]byte, error) {
	if err := ValidateHTTPS(rawURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, aierr.New(aierr.InvalidInputParameterValue, "could not build HTTP request", err.Error())
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, aierr.New(aierr.NetworkHTTPError, fmt.Sprintf("HTTP %d", resp.StatusCode), rawURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	return body, nil
}

func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "context canceled"):
		return aierr.New(aierr.OperationCancelled, "request cancelled", msg)
	case strings.Contains(msg, "tls") || strings.Contains(msg, "x509") || strings.Contains(msg, "certificate"):
		return aierr.New(aierr.NetworkSSLError, "TLS handshake failed", msg)
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "dns"):
		return aierr.New(aierr.NetworkDNSFailure, "DNS lookup failed", msg)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return aierr.New(aierr.NetworkConnectionTimeout, "connection timed out", msg)
	default:
		return aierr.New(aierr.NetworkUnreachable, "network unreachable", msg)
	}
}
