package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/device-share-storage/interfaces"
)

// DirDownloader saves manual exports into a downloads directory, the way a
// browser saves a clicked download link.
type DirDownloader struct {
	dir string
	log *slog.Logger
}

var _ interfaces.Downloader = (*DirDownloader)(nil)

// NewDirDownloader creates the downloads directory if it does not exist.
func NewDirDownloader(dir string, log *slog.Logger) (*DirDownloader, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &DirDownloader{dir: dir, log: log}, nil
}

// Download decodes href and saves it as filename. An existing file is
// replaced.
func (d *DirDownloader) Download(_ context.Context, filename, href string) error {
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("invalid download file name %q", filename)
	}
	data, err := DecodeDataURI(href)
	if err != nil {
		return err
	}

	path := filepath.Join(d.dir, filename)
	if err := writeFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}

	d.log.Info("Saved share export", slog.String("path", path), slog.Int("size", len(data)))
	return nil
}
