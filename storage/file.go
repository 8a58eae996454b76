package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruteri/device-share-storage/interfaces"
)

// DirFileSystem implements the secondary host filesystem on a local directory.
// The directory plays the role of the per-origin sandbox; quota grants are
// capped at maxQuota, and a maxQuota of zero models a user who refused
// persistent storage.
type DirFileSystem struct {
	baseDir  string
	maxQuota int64
	log      *slog.Logger
}

var _ interfaces.FileSystemHost = (*DirFileSystem)(nil)

// NewDirFileSystem creates the sandbox directory if it does not exist.
func NewDirFileSystem(baseDir string, maxQuota int64, log *slog.Logger) (*DirFileSystem, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &DirFileSystem{baseDir: baseDir, maxQuota: maxQuota, log: log}, nil
}

// RequestQuota grants min(requested, maxQuota).
func (d *DirFileSystem) RequestQuota(_ context.Context, requestedBytes int64) (int64, error) {
	if d.maxQuota <= 0 {
		return 0, fmt.Errorf("%w: persistent storage refused", interfaces.ErrQuotaExceeded)
	}
	return min(requestedBytes, d.maxQuota), nil
}

// RequestFileSystem opens the sandbox. Asking for more than maxQuota is a
// quota rejection.
func (d *DirFileSystem) RequestFileSystem(_ context.Context, grantedBytes int64) (interfaces.FileSystem, error) {
	if d.maxQuota <= 0 || grantedBytes > d.maxQuota {
		return nil, fmt.Errorf("%w: requested %d bytes, allotment %d", interfaces.ErrQuotaExceeded, grantedBytes, d.maxQuota)
	}
	return &dirSandbox{fs: d, limit: grantedBytes}, nil
}

type dirSandbox struct {
	fs    *DirFileSystem
	limit int64
}

func (s *dirSandbox) GetFile(_ context.Context, name string, create bool) (interfaces.FileEntry, error) {
	path, err := s.fs.filePath(name)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || !create {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		if err := writeFileAtomic(path, nil, 0600); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
	}

	return &dirFileEntry{path: path, sandbox: s}, nil
}

type dirFileEntry struct {
	path    string
	sandbox *dirSandbox
}

func (e *dirFileEntry) Text(_ context.Context) (string, error) {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func (e *dirFileEntry) Write(_ context.Context, data []byte) error {
	if int64(len(data)) > e.sandbox.limit {
		return fmt.Errorf("%w: writing %d bytes with %d granted", interfaces.ErrQuotaExceeded, len(data), e.sandbox.limit)
	}
	if err := writeFileAtomic(e.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	e.sandbox.fs.log.Debug("Wrote sandbox file",
		slog.String("path", e.path),
		slog.Int("size", len(data)))
	return nil
}

// filePath keeps name inside the sandbox.
func (d *DirFileSystem) filePath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(d.baseDir, name), nil
}

// writeFileAtomic writes bytes via a temp file, then atomically replaces the target.
func writeFileAtomic(path string, b []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	// Best-effort cleanup if anything fails before rename.
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
