package services

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveMirror receives the downloaded archive before it is deleted.
type ArchiveMirror interface {
	Mirror(ctx context.Context, localPath, objectName string) error
}

// ArchiveFetcher downloads a zip archive and extracts it into a directory,
// replacing whatever the previous run extracted there.
type ArchiveFetcher struct {
	httpClient  *http.Client
	archivePath string
	extractDir  string
	mirror      ArchiveMirror
}

// NewArchiveFetcher creates a fetcher. mirror may be nil.
func NewArchiveFetcher(httpClient *http.Client, archivePath, extractDir string, mirror ArchiveMirror) *ArchiveFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ArchiveFetcher{
		httpClient:  httpClient,
		archivePath: archivePath,
		extractDir:  extractDir,
		mirror:      mirror,
	}
}

// Fetch downloads url, extracts it and removes the archive. It returns the
// paths of the extracted files. mirrorName is the object name used by the mirror.
func (f *ArchiveFetcher) Fetch(ctx context.Context, url, mirrorName string) ([]string, error) {
	logCtx := slog.With("url", url, "archive", f.archivePath)

	n, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Downloaded archive.", "bytes", n)

	if f.mirror != nil && mirrorName != "" {
		if err := f.mirror.Mirror(ctx, f.archivePath, mirrorName); err != nil {
			logCtx.Warn("Failed to mirror archive. Continuing.", "error", err)
		}
	}

	if err := os.RemoveAll(f.extractDir); err != nil {
		return nil, fmt.Errorf("failed to remove previous extraction %s: %w", f.extractDir, err)
	}
	files, err := extractZip(f.archivePath, f.extractDir)
	if err != nil {
		return nil, err
	}
	logCtx.Info("Extracted archive.", "dir", f.extractDir, "fileCount", len(files))

	if err := os.Remove(f.archivePath); err != nil {
		return nil, fmt.Errorf("failed to remove archive %s: %w", f.archivePath, err)
	}
	logCtx.Info("Removed archive file.")
	return files, nil
}

func (f *ArchiveFetcher) download(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("failed to download %s: unexpected status %s", url, resp.Status)
	}

	if dir := filepath.Dir(f.archivePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	out, err := os.Create(f.archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive file at %s: %w", f.archivePath, err)
	}
	n, err := io.Copy(out, resp.Body)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("failed to write archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close archive file: %w", err)
	}
	return n, nil
}

// extractZip extracts every entry of the archive under dir.
func extractZip(archivePath, dir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create extraction dir %s: %w", dir, err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, zf := range r.File {
		target := filepath.Join(root, filepath.FromSlash(zf.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive entry %q escapes %s", zf.Name, dir)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return nil, err
		}
		files = append(files, filepath.Join(dir, filepath.FromSlash(zf.Name)))
	}
	return files, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}
	src, err := zf.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", zf.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to extract %s: %w", zf.Name, err)
	}
	return dst.Close()
}
