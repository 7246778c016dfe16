package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"unitmap/internal/extract"
	"unitmap/internal/ingest"
	"unitmap/internal/store"
)

func makeTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     0644,
			Size:     int64(len(body)),
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newFetcher(t *testing.T) (*Fetcher, *store.Memory) {
	t.Helper()
	t.Setenv("UNITMAP_HOME", t.TempDir())
	s := store.NewMemory()
	ing := ingest.New(s, extract.NewPool(1, 0, nil), 2000, nil)
	f, err := New(ing, nil)
	require.NoError(t, err)
	return f, s
}

func serveArchive(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImportTarGz(t *testing.T) {
	archive := makeTarGz(t, map[string]string{
		"pkg/app.js": "function main() { helper(); }\n",
		"pkg/lib.js": "function helper() {}\n",
		"pkg/doc.md": "not source\n",
	})
	srv := serveArchive(t, archive)
	f, s := newFetcher(t)

	url := srv.URL + "/corpus.tar.gz"
	rep, err := f.Import(context.Background(), url, "")
	require.NoError(t, err)
	require.Equal(t, 2, rep.Files)
	require.Equal(t, 2, rep.Units)
	require.Equal(t, 1, rep.Edges)

	units, err := s.GetAllUnits(context.Background())
	require.NoError(t, err)
	for _, u := range units {
		require.Contains(t, u.OriginalSource, url+"!pkg/")
	}
}

func TestImportZip(t *testing.T) {
	archive := makeZip(t, map[string]string{
		"src/a.js": "function zipped() {}\n",
	})
	srv := serveArchive(t, archive)
	f, s := newFetcher(t)

	rep, err := f.Import(context.Background(), srv.URL+"/corpus.zip", "")
	require.NoError(t, err)
	require.Equal(t, 1, rep.Units)

	ids, err := s.FindUnitIDsByName(context.Background(), "zipped")
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func TestImportVerifiesChecksum(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"a.js": "function f() {}\n"})
	srv := serveArchive(t, archive)
	f, _ := newFetcher(t)

	sum := sha256.Sum256(archive)
	_, err := f.Import(context.Background(), srv.URL+"/a.tgz", hex.EncodeToString(sum[:]))
	require.NoError(t, err)

	_, err = f.Import(context.Background(), srv.URL+"/a.tgz", "deadbeef")
	require.ErrorContains(t, err, "checksum")
}

func TestImportRejectsEscapingEntries(t *testing.T) {
	archive := makeTarGz(t, map[string]string{"../evil.js": "function evil() {}\n"})
	srv := serveArchive(t, archive)
	f, _ := newFetcher(t)

	_, err := f.Import(context.Background(), srv.URL+"/evil.tgz", "")
	require.ErrorContains(t, err, "escapes destination")
}

func TestDownloadRetryDiscardsPartialBody(t *testing.T) {
	long := strings.Repeat("x", 512)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Promise more bytes than we send so the client sees a
			// truncated body and retries.
			w.Header().Set("Content-Length", strconv.Itoa(len(long)*2))
			w.Write([]byte(long))
			return
		}
		w.Write([]byte("short"))
	}))
	t.Cleanup(srv.Close)
	f, _ := newFetcher(t)

	dest, err := os.CreateTemp(t.TempDir(), "dl-*")
	require.NoError(t, err)
	defer dest.Close()

	require.NoError(t, f.downloadFile(context.Background(), srv.URL, dest))
	require.EqualValues(t, 2, calls.Load())

	data, err := os.ReadFile(dest.Name())
	require.NoError(t, err)
	require.Equal(t, "short", string(data), "second attempt must not keep stale bytes from the first")
}

func TestSecurePath(t *testing.T) {
	tests := []struct {
		name    string
		entry   string
		wantErr bool
	}{
		{"plain", "a/b.js", false},
		{"dot segments collapse", "a/./b.js", false},
		{"parent escape", "../x.js", true},
		{"nested escape", "a/../../x.js", true},
		{"absolute", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := securePath("/dest", tt.entry)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
