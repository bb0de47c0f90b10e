package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = []byte("\x00asm\x01\x00\x00\x00fake module")

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func moduleServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/qjs.wasm" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestModuleDownloads(t *testing.T) {
	srv, hits := moduleServer(t)
	dest := filepath.Join(t.TempDir(), "nested", "qjs.wasm")

	res, err := Module(context.Background(), Options{URL: srv.URL + "/qjs.wasm", Dest: dest, SHA256: digest(payload)})
	require.NoError(t, err)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, int64(len(payload)), res.Bytes)
	assert.Equal(t, digest(payload), res.SHA256)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, *hits)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestModuleSkipsExisting(t *testing.T) {
	srv, hits := moduleServer(t)
	dest := filepath.Join(t.TempDir(), "qjs.wasm")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0644))

	res, err := Module(context.Background(), Options{URL: srv.URL + "/qjs.wasm", Dest: dest})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, *hits)

	res, err = Module(context.Background(), Options{URL: srv.URL + "/qjs.wasm", Dest: dest, Force: true})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	got, _ := os.ReadFile(dest)
	assert.Equal(t, payload, got)
}

func TestModuleChecksumMismatch(t *testing.T) {
	srv, _ := moduleServer(t)
	dest := filepath.Join(t.TempDir(), "qjs.wasm")

	_, err := Module(context.Background(), Options{URL: srv.URL + "/qjs.wasm", Dest: dest, SHA256: digest([]byte("other"))})
	assert.ErrorIs(t, err, ErrChecksum)
	assert.NoFileExists(t, dest)
}

func TestModuleHTTPError(t *testing.T) {
	srv, _ := moduleServer(t)
	dest := filepath.Join(t.TempDir(), "qjs.wasm")

	_, err := Module(context.Background(), Options{URL: srv.URL + "/missing", Dest: dest})
	assert.ErrorContains(t, err, "404")
	assert.NoFileExists(t, dest)
}

func TestModuleTooLarge(t *testing.T) {
	srv, _ := moduleServer(t)
	dest := filepath.Join(t.TempDir(), "qjs.wasm")

	_, err := Module(context.Background(), Options{URL: srv.URL + "/qjs.wasm", Dest: dest, MaxBytes: 4})
	assert.ErrorContains(t, err, "exceeds 4 bytes")
	assert.NoFileExists(t, dest)
}

func TestModuleCopiesLocalFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.wasm")
	require.NoError(t, os.WriteFile(src, payload, 0644))

	for i, url := range []string{src, "file://" + src} {
		dest := filepath.Join(dir, "out", fmt.Sprintf("copy%d.wasm", i))
		res, err := Module(context.Background(), Options{URL: url, Dest: dest})
		require.NoError(t, err, url)
		assert.False(t, res.Skipped)
		got, _ := os.ReadFile(dest)
		assert.Equal(t, payload, got)
	}
}

func TestModuleRequiresURLAndDest(t *testing.T) {
	_, err := Module(context.Background(), Options{Dest: "x"})
	assert.Error(t, err)
	_, err = Module(context.Background(), Options{URL: "x"})
	assert.Error(t, err)
}
