// Package fetch downloads the QuickJS WASI module used by the wasm engine.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ErrChecksum is returned when the downloaded bytes do not match the
// expected digest. Nothing is written in that case.
var ErrChecksum = errors.New("checksum mismatch")

// Options control a download.
type Options struct {
	// URL of the module. file:// URLs and plain paths are copied.
	URL string
	// Dest is the output path.
	Dest string
	// SHA256 is the expected hex digest. Empty skips verification.
	SHA256 string
	// Force re-downloads even when Dest exists.
	Force bool
	// MaxBytes bounds the download. Zero means 64MB.
	MaxBytes int64
	Client   *http.Client
}

// Result describes a finished download.
type Result struct {
	Path    string
	Bytes   int64
	SHA256  string
	Skipped bool
}

// Module downloads opts.URL to opts.Dest. The file is written to a temporary
// sibling first and renamed into place, so Dest is never left half-written.
func Module(ctx context.Context, opts Options) (Result, error) {
	if opts.URL == "" {
		return Result{}, errors.New("no module url")
	}
	if opts.Dest == "" {
		return Result{}, errors.New("no destination path")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 64 << 20
	}

	if !opts.Force {
		if _, err := os.Stat(opts.Dest); err == nil {
			return Result{Path: opts.Dest, Skipped: true}, nil
		}
	}

	body, err := open(ctx, opts)
	if err != nil {
		return Result{}, err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(opts.Dest), 0755); err != nil {
		return Result{}, fmt.Errorf("create module dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(opts.Dest), ".module-*.tmp")
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(body, opts.MaxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Result{}, fmt.Errorf("download module: %w", err)
	}
	if n > opts.MaxBytes {
		return Result{}, fmt.Errorf("module exceeds %d bytes", opts.MaxBytes)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if opts.SHA256 != "" && !strings.EqualFold(sum, opts.SHA256) {
		return Result{}, fmt.Errorf("%w: got %s, want %s", ErrChecksum, sum, opts.SHA256)
	}

	if err := os.Rename(tmpPath, opts.Dest); err != nil {
		return Result{}, fmt.Errorf("install module: %w", err)
	}
	return Result{Path: opts.Dest, Bytes: n, SHA256: sum}, nil
}

func open(ctx context.Context, opts Options) (io.ReadCloser, error) {
	if path, ok := localPath(opts.URL); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open module: %w", err)
		}
		return f, nil
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch module: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return resp.Body, nil
}

func localPath(url string) (string, bool) {
	if rest, ok := strings.CutPrefix(url, "file://"); ok {
		return rest, true
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return "", false
	}
	return url, true
}
