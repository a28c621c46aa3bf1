package services

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// DistFolder is the conventional build-output directory uploaded to object
// storage.
const DistFolder = "dist"

// Ingestor extracts uploaded build archives and streams the output
// directory into object storage.
type Ingestor struct {
	UploadDir string
	Store     ObjectUploader
}

func NewIngestor(uploadDir string, store ObjectUploader) *Ingestor {
	return &Ingestor{UploadDir: uploadDir, Store: store}
}

// Extract unpacks the archive into a per-slug directory and locates the
// dist subdirectory. On failure both the archive and any partially
// extracted files are removed before the error is returned.
func (ing *Ingestor) Extract(archivePath string, projectSlug string) (string, string, error) {
	extractPath := filepath.Join(ing.UploadDir, projectSlug)

	if err := ing.extractArchive(archivePath, extractPath); err != nil {
		ing.Cleanup(archivePath, extractPath)
		return "", "", err
	}

	distPath := filepath.Join(extractPath, DistFolder)
	info, err := os.Stat(distPath)
	if err != nil || !info.IsDir() {
		ing.Cleanup(archivePath, extractPath)
		return "", "", fmt.Errorf("archive has no %v directory", DistFolder)
	}
	return extractPath, distPath, nil
}

func (ing *Ingestor) extractArchive(archivePath string, extractPath string) error {
	if err := os.MkdirAll(extractPath, 0o755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %v", err)
	}

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %v", err)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		target := filepath.Join(extractPath, entry.Name)
		// reject entries escaping the extraction root
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(extractPath)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %v escapes extraction directory", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create %v: %v", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create %v: %v", filepath.Dir(target), err)
		}
		if err := extractEntry(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, target string) error {
	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %v: %v", entry.Name, err)
	}
	defer source.Close()

	destination, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %v: %v", target, err)
	}
	defer destination.Close()

	// stream, entries may be large
	if _, err := io.Copy(destination, source); err != nil {
		return fmt.Errorf("failed to write %v: %v", target, err)
	}
	return nil
}

// UploadDist walks every regular file under distPath and uploads it under
// {owner}/{repo}/{relative path}. File uploads are independent of their
// siblings; no ordering is guaranteed.
func (ing *Ingestor) UploadDist(ctx context.Context, distPath string, owner string, repo string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(distPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(distPath, path)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%s/%s", owner, repo, filepath.ToSlash(rel))
		if err := ing.Store.PutFile(ctx, key, path); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("failed to upload build output: %v", err)
	}
	return uploaded, nil
}

// Cleanup removes the archive and the extraction directory. Failures are
// logged, not raised: leaking disk space silently is the thing to avoid,
// and a second error would mask the original one.
func (ing *Ingestor) Cleanup(archivePath string, extractPath string) {
	if archivePath != "" {
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			log.Printf("Could not delete archive %v: %v", archivePath, err)
		}
	}
	if extractPath != "" {
		if err := os.RemoveAll(extractPath); err != nil {
			log.Printf("Could not delete extracted directory %v: %v", extractPath, err)
		}
	}
}
