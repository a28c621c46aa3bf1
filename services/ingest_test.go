package services

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingUploader struct {
	keys    []string
	failKey string
}

func (u *recordingUploader) PutFile(ctx context.Context, key string, path string) error {
	if u.failKey != "" && key == u.failKey {
		return fmt.Errorf("upload rejected")
	}
	u.keys = append(u.keys, key)
	return nil
}

func writeTestArchive(tb testing.TB, dir string, entries map[string]string) string {
	archivePath := filepath.Join(dir, "site.zip")
	f, err := os.Create(archivePath)
	assert.NoError(tb, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		assert.NoError(tb, err)
		_, err = entry.Write([]byte(content))
		assert.NoError(tb, err)
	}
	assert.NoError(tb, w.Close())
	return archivePath
}

func TestExtractAndUploadDist(t *testing.T) {
	uploadDir := t.TempDir()
	archivePath := writeTestArchive(t, uploadDir, map[string]string{
		"dist/index.html":    "<html></html>",
		"dist/assets/app.js": "console.log(1)",
	})

	uploader := &recordingUploader{}
	ingestor := NewIngestor(uploadDir, uploader)

	extractPath, distPath, err := ingestor.Extract(archivePath, "octocat-site")
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(uploadDir, "octocat-site"), extractPath)

	count, err := ingestor.UploadDist(context.Background(), distPath, "octocat", "site")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	sort.Strings(uploader.keys)
	assert.Equal(t, []string{
		"octocat/site/assets/app.js",
		"octocat/site/index.html",
	}, uploader.keys)

	ingestor.Cleanup(archivePath, extractPath)
	_, err = os.Stat(archivePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(extractPath)
	assert.True(t, os.IsNotExist(err))
}

func TestExtractRejectsArchiveWithoutDist(t *testing.T) {
	uploadDir := t.TempDir()
	archivePath := writeTestArchive(t, uploadDir, map[string]string{
		"build/index.html": "<html></html>",
	})

	ingestor := NewIngestor(uploadDir, &recordingUploader{})

	_, _, err := ingestor.Extract(archivePath, "octocat-site")
	assert.Error(t, err)

	// both the archive and the partial extraction are gone
	_, err = os.Stat(archivePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(uploadDir, "octocat-site"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	uploadDir := t.TempDir()
	archivePath := writeTestArchive(t, uploadDir, map[string]string{
		"../evil.txt":     "nope",
		"dist/index.html": "<html></html>",
	})

	ingestor := NewIngestor(uploadDir, &recordingUploader{})

	_, _, err := ingestor.Extract(archivePath, "octocat-site")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "escapes extraction directory")

	_, err = os.Stat(filepath.Join(uploadDir, "evil.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadDistStopsOnFirstFailure(t *testing.T) {
	uploadDir := t.TempDir()
	archivePath := writeTestArchive(t, uploadDir, map[string]string{
		"dist/index.html": "<html></html>",
	})

	uploader := &recordingUploader{failKey: "octocat/site/index.html"}
	ingestor := NewIngestor(uploadDir, uploader)

	_, distPath, err := ingestor.Extract(archivePath, "octocat-site")
	assert.NoError(t, err)

	_, err = ingestor.UploadDist(context.Background(), distPath, "octocat", "site")
	assert.Error(t, err)
}
