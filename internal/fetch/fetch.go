// Package fetch downloads remote corpus archives and feeds their source
// files into the ingester.
package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"unitmap/internal/config"
	"unitmap/internal/ingest"
)

// Fetcher downloads and extracts source archives into the imports cache,
// then hands the extracted tree to the ingester.
type Fetcher struct {
	cacheDir string
	client   *http.Client
	ingester *ingest.Ingester
	logger   *zap.Logger
}

// New creates a Fetcher using the default imports cache directory.
func New(ingester *ingest.Ingester, logger *zap.Logger) (*Fetcher, error) {
	cacheDir, err := config.ImportsDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get imports dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cacheDir: cacheDir,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		ingester: ingester,
		logger:   logger,
	}, nil
}

// Import downloads the archive at url, extracts its source files and
// ingests them. Sources are prefixed with the archive URL so units from
// different corpora stay distinguishable. checksum, when non-empty, is the
// expected hex SHA256 of the archive.
func (f *Fetcher) Import(ctx context.Context, url, checksum string) (ingest.Report, error) {
	destDir := filepath.Join(f.cacheDir, cacheKey(url))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return ingest.Report{}, fmt.Errorf("failed to create import dir: %w", err)
	}

	tmpFile, err := os.CreateTemp("", "unitmap-import-*")
	if err != nil {
		return ingest.Report{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	f.logger.Info("downloading corpus archive", zap.String("url", url))
	if err := f.downloadFile(ctx, url, tmpFile); err != nil {
		return ingest.Report{}, fmt.Errorf("download failed: %w", err)
	}

	if checksum != "" {
		if err := verifyChecksum(tmpFile.Name(), checksum); err != nil {
			return ingest.Report{}, fmt.Errorf("checksum verification failed: %w", err)
		}
	}

	if err := extractArchive(tmpFile.Name(), destDir); err != nil {
		return ingest.Report{}, fmt.Errorf("extraction failed: %w", err)
	}

	report, err := f.ingester.IngestDir(ctx, destDir, url)
	if err != nil {
		return ingest.Report{}, fmt.Errorf("ingest of %s failed: %w", url, err)
	}
	return report, nil
}

// downloadFile downloads a file with retries.
func (f *Fetcher) downloadFile(ctx context.Context, url string, dest *os.File) error {
	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * time.Second
			f.logger.Info("retrying download",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			continue
		}

		// Discard any partial body left behind by a failed attempt.
		if err := dest.Truncate(0); err != nil {
			resp.Body.Close()
			return err
		}
		if _, err := dest.Seek(0, 0); err != nil {
			resp.Body.Close()
			return err
		}

		_, err = io.Copy(dest, resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	return fmt.Errorf("download failed after %d attempts: %w", maxRetries, lastErr)
}

// extractArchive extracts every regular file from the archive into destDir.
func extractArchive(archivePath, destDir string) error {
	if isZip(archivePath) {
		return extractZip(archivePath, destDir)
	}
	return extractTarGz(archivePath, destDir)
}

// isZip sniffs the archive magic; URLs do not always carry an extension.
func isZip(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var magic [2]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return magic[0] == 'P' && magic[1] == 'K'
}

func extractTarGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		destPath, err := securePath(destDir, header.Name)
		if err != nil {
			return err
		}
		if err := extractFile(tr, destPath, header.FileInfo().Mode()); err != nil {
			return err
		}
	}

	return nil
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		destPath, err := securePath(destDir, zf.Name)
		if err != nil {
			return err
		}
		rc, err := zf.Open()
		if err != nil {
			return err
		}
		err = extractFile(rc, destPath, zf.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

// securePath joins name under destDir, rejecting entries that would escape
// the destination.
func securePath(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return filepath.Join(destDir, cleaned), nil
}

// extractFile writes a single archive entry to destPath.
func extractFile(r io.Reader, destPath string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return err
	}
	return out.Close()
}

// verifyChecksum verifies the SHA256 checksum of a file.
func verifyChecksum(filePath, expectedChecksum string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}

	actualChecksum := hex.EncodeToString(h.Sum(nil))
	if actualChecksum != expectedChecksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedChecksum, actualChecksum)
	}

	return nil
}

// cacheKey derives a stable directory name for an archive URL.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8])
}
