package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// UserAgent identifies image downloads to origin servers.
	UserAgent = "CatalogServer-ImageCache/1.0"

	// DefaultMaxDownloadSize limits download size to prevent memory exhaustion.
	DefaultMaxDownloadSize = 10 * 1024 * 1024 // 10MB

	// DefaultDownloadTimeout is the maximum time for one image download.
	DefaultDownloadTimeout = 15 * time.Second
)

// ErrDownloadTooLarge is returned when the body exceeds the size limit.
var ErrDownloadTooLarge = errors.New("imagecache: image exceeds size limit")

// downloader fetches source images over HTTP.
type downloader struct {
	httpClient *http.Client
	timeout    time.Duration
	maxSize    int64
}

func newDownloader(client *http.Client, timeout time.Duration, maxSize int64) *downloader {
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxDownloadSize
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &downloader{httpClient: client, timeout: timeout, maxSize: maxSize}
}

// fetch downloads url and returns the body. Any non-2xx status is a failure.
func (d *downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	downloadCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	// One byte past the limit marks an oversize body.
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	if int64(len(data)) > d.maxSize {
		return nil, ErrDownloadTooLarge
	}
	return data, nil
}
