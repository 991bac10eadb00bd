// Package fetch downloads source archives into the storage directory.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// ProgressFunc receives the bytes written so far and the expected total,
// which is -1 when the server does not send a length
type ProgressFunc func(done, total int64)

// Result describes a completed download
type Result struct {
	Checksum string // hex sha256 of the downloaded bytes
	Size     int64
}

// Fetcher downloads http, https and file URLs
type Fetcher struct {
	Client *http.Client
}

// New creates a Fetcher with the default client
func New() *Fetcher {
	return &Fetcher{Client: NewHTTPClient()}
}

// NewHTTPClient returns a client without an overall timeout. Source
// archives can be large and slow mirrors are common.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 30 * time.Second

	return &http.Client{Transport: transport}
}

// Fetch downloads rawURL to dest. An existing dest is removed first and the
// data is written to dest+".part" then renamed, so dest only ever holds a
// complete download.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string, progress ProgressFunc) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create download directory: %w", err)
	}

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("failed to remove stale download %s: %w", dest, err)
	}

	body, total, err := f.open(ctx, rawURL)
	if err != nil {
		return Result{}, err
	}
	defer body.Close()

	part := dest + ".part"

	res, err := write(part, body, total, progress)
	if err != nil {
		_ = os.Remove(part)
		return Result{}, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return Result{}, fmt.Errorf("failed to move download into place: %w", err)
	}

	return res, nil
}

func (f *Fetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
	case "file":
		file, err := os.Open(u.Path)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open %s: %w", rawURL, err)
		}

		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, 0, fmt.Errorf("failed to stat %s: %w", rawURL, err)
		}

		return file, info.Size(), nil
	default:
		return nil, 0, fmt.Errorf("unsupported url scheme %q in %s", u.Scheme, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid request for %s: %w", rawURL, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("failed to download %s: server returned %s", rawURL, resp.Status)
	}

	return resp.Body, resp.ContentLength, nil
}

func write(path string, r io.Reader, total int64, progress ProgressFunc) (Result, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Result{}, err
	}
	defer file.Close()

	hash := sha256.New()
	counter := &countingWriter{total: total, progress: progress}

	size, err := io.Copy(io.MultiWriter(hash, file, counter), r)
	if err != nil {
		return Result{}, err
	}

	if err := file.Sync(); err != nil {
		return Result{}, err
	}

	if err := file.Close(); err != nil {
		return Result{}, err
	}

	return Result{Checksum: hex.EncodeToString(hash.Sum(nil)), Size: size}, nil
}

type countingWriter struct {
	done     int64
	total    int64
	progress ProgressFunc
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.done += int64(len(p))
	if w.progress != nil {
		w.progress(w.done, w.total)
	}

	return len(p), nil
}
