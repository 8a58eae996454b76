package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/device-share-storage/interfaces"
)

// requestedBytes is the allotment asked for on writes and assumed already
// granted on reads.
const requestedBytes int64 = 10 * 1024 * 1024

// FileStorageBackend is the secondary share store, backed by the host's
// quota-granted sandboxed filesystem. When the host has no filesystem
// capability, writes fall back to a manual download of the record.
type FileStorageBackend struct {
	env interfaces.HostEnvironment
	log *slog.Logger
}

var _ interfaces.ShareStore = (*FileStorageBackend)(nil)

// NewFileStorageBackend creates the secondary store adapter over env.
func NewFileStorageBackend(env interfaces.HostEnvironment, log *slog.Logger) *FileStorageBackend {
	if log == nil {
		log = slog.Default()
	}
	return &FileStorageBackend{env: env, log: log}
}

// IsSupported reports whether the host exposes a filesystem request
// capability under either its standard or vendor-prefixed name.
func (b *FileStorageBackend) IsSupported() bool {
	_, ok := b.fileSystemHost()
	return ok
}

// fileSystemHost normalizes requestFileSystem and webkitRequestFileSystem.
func (b *FileStorageBackend) fileSystemHost() (interfaces.FileSystemHost, bool) {
	for _, name := range []string{interfaces.CapabilityRequestFileSystem, interfaces.CapabilityWebkitRequestFileSystem} {
		capability, ok := b.env.Capability(name)
		if !ok {
			continue
		}
		if host, ok := capability.(interfaces.FileSystemHost); ok {
			return host, true
		}
	}
	return nil, false
}

// Put writes record to a file named key. The quota request, the file system
// request and the write itself may each be rejected; rejections propagate
// unmodified. Without filesystem support the record is offered to the user
// as a "<key>.json" download and Put returns once the download is triggered.
func (b *FileStorageBackend) Put(ctx context.Context, key interfaces.StorageKey, record interfaces.ShareRecord) error {
	start := time.Now()
	text, err := record.Compact()
	if err != nil {
		return err
	}

	host, ok := b.fileSystemHost()
	if !ok {
		return b.download(ctx, key+".json", text)
	}

	granted, err := host.RequestQuota(ctx, requestedBytes)
	if err != nil {
		return err
	}
	fs, err := host.RequestFileSystem(ctx, granted)
	if err != nil {
		return err
	}
	entry, err := fs.GetFile(ctx, key, true)
	if err != nil {
		return err
	}
	if err := entry.Write(ctx, text); err != nil {
		return err
	}

	b.log.Debug("Stored share in file storage",
		slog.String("key", shortKey(key)),
		slog.Int64("granted", granted),
		slog.Int("size", len(text)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Get reads the record stored in the file named key. An empty file reports
// ShareUnavailableInSecondaryStore; a missing file or denied access is
// returned as the host reported it.
func (b *FileStorageBackend) Get(ctx context.Context, key interfaces.StorageKey) (interfaces.ShareRecord, error) {
	start := time.Now()

	host, ok := b.fileSystemHost()
	if !ok {
		return nil, interfaces.SecondaryStoreUnavailable("")
	}

	fs, err := host.RequestFileSystem(ctx, requestedBytes)
	if err != nil {
		return nil, err
	}
	entry, err := fs.GetFile(ctx, key, false)
	if err != nil {
		return nil, err
	}
	text, err := entry.Text(ctx)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, interfaces.ShareUnavailableInSecondaryStore("")
	}

	record, err := interfaces.ParseShareRecord([]byte(text))
	if err != nil {
		return nil, err
	}

	b.log.Debug("Fetched share from file storage",
		slog.String("key", shortKey(key)),
		slog.Int("size", len(text)),
		slog.Duration("duration", time.Since(start)))
	return record, nil
}

// QueryCapability asks the host permission system about persistent storage
// access. Hosts without a permission system report ErrCapabilityUnsupported.
func (b *FileStorageBackend) QueryCapability(ctx context.Context) (interfaces.PermissionStatus, error) {
	capability, ok := b.env.Capability(interfaces.CapabilityPermissions)
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrCapabilityUnsupported, interfaces.CapabilityPermissions)
	}
	querier, ok := capability.(interfaces.PermissionQuerier)
	if !ok {
		return nil, fmt.Errorf("%w: %s has type %T", interfaces.ErrCapabilityUnsupported, interfaces.CapabilityPermissions, capability)
	}
	return querier.Query(ctx, interfaces.PersistentStoragePermission)
}

// Query lets the backend serve as the permission tracker's querier.
func (b *FileStorageBackend) Query(ctx context.Context, name string) (interfaces.PermissionStatus, error) {
	if name != interfaces.PersistentStoragePermission {
		return nil, fmt.Errorf("%w: permission %s", interfaces.ErrCapabilityUnsupported, name)
	}
	return b.QueryCapability(ctx)
}

// Name returns a unique identifier for this store.
func (b *FileStorageBackend) Name() string {
	return "file-storage"
}

// download hands the record to the host as a data URI. The user's save is
// not awaited. A host without a download capability is an environment
// failure, not a taxonomy error.
func (b *FileStorageBackend) download(ctx context.Context, filename string, text []byte) error {
	capability, ok := b.env.Capability(interfaces.CapabilityDownload)
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrCapabilityUnsupported, interfaces.CapabilityDownload)
	}
	downloader, ok := capability.(interfaces.Downloader)
	if !ok {
		return fmt.Errorf("%w: %s has type %T", interfaces.ErrCapabilityUnsupported, interfaces.CapabilityDownload, capability)
	}

	if err := downloader.Download(ctx, filename, DataURI(text)); err != nil {
		return err
	}

	b.log.Info("Triggered manual share export", slog.String("filename", filename))
	return nil
}

const dataURIPrefix = "data:application/json;charset=utf-8,"

// DataURI embeds JSON text into a downloadable data URI.
func DataURI(text []byte) string {
	return dataURIPrefix + encodeURIComponent(string(text))
}

// DecodeDataURI extracts the JSON text from a URI built by DataURI.
func DecodeDataURI(href string) ([]byte, error) {
	if !strings.HasPrefix(href, dataURIPrefix) {
		return nil, fmt.Errorf("unsupported data URI: %.32s", href)
	}
	text, err := url.PathUnescape(strings.TrimPrefix(href, dataURIPrefix))
	if err != nil {
		return nil, fmt.Errorf("invalid data URI encoding: %w", err)
	}
	return []byte(text), nil
}

// uriComponentUnreserved restores the marks that query escaping encodes but a
// URI component leaves literal, and spaces as %20.
var uriComponentUnreserved = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// encodeURIComponent escapes everything except A-Z a-z 0-9 - _ . ! ~ * ' ( ).
func encodeURIComponent(s string) string {
	return uriComponentUnreserved.Replace(url.QueryEscape(s))
}
