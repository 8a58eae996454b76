package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/device-share-storage/interfaces"
)

// storageTestKey is written and removed on every call to probe the store.
const storageTestKey = "__storage_test__"

// LocalStorageBackend is the primary share store. It persists records as
// compact JSON text in the host's "localStorage" key-value capability.
type LocalStorageBackend struct {
	env interfaces.HostEnvironment
	log *slog.Logger
}

var _ interfaces.ShareStore = (*LocalStorageBackend)(nil)

// NewLocalStorageBackend creates the primary store adapter over env.
func NewLocalStorageBackend(env interfaces.HostEnvironment, log *slog.Logger) *LocalStorageBackend {
	if log == nil {
		log = slog.Default()
	}
	return &LocalStorageBackend{env: env, log: log}
}

// Put serializes record and writes it under key. The store is probed first;
// a failed probe reports PrimaryStoreUnavailable without attempting the write.
func (b *LocalStorageBackend) Put(ctx context.Context, key interfaces.StorageKey, record interfaces.ShareRecord) error {
	text, err := record.Compact()
	if err != nil {
		return err
	}

	store, ok := b.available(ctx)
	if !ok {
		return interfaces.PrimaryStoreUnavailable("")
	}

	if err := store.SetItem(ctx, key, string(text)); err != nil {
		b.log.Error("Failed to write share to primary store",
			slog.String("key", shortKey(key)),
			"err", err)
		return fmt.Errorf("failed to write share to primary store: %w", err)
	}

	b.log.Debug("Stored share in primary store",
		slog.String("key", shortKey(key)),
		slog.Int("size", len(text)))
	return nil
}

// Get returns the record stored under key. Malformed stored text is returned
// as a parse error and is not retried.
func (b *LocalStorageBackend) Get(ctx context.Context, key interfaces.StorageKey) (interfaces.ShareRecord, error) {
	start := time.Now()

	store, ok := b.available(ctx)
	if !ok {
		return nil, interfaces.PrimaryStoreUnavailable("")
	}

	text, found, err := store.GetItem(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read share from primary store: %w", err)
	}
	if !found || text == "" {
		b.log.Debug("Share not found in primary store",
			slog.String("key", shortKey(key)),
			slog.Duration("duration", time.Since(start)))
		return nil, interfaces.ShareUnavailableInPrimaryStore("")
	}

	record, err := interfaces.ParseShareRecord([]byte(text))
	if err != nil {
		b.log.Error("Malformed share in primary store",
			slog.String("key", shortKey(key)),
			"err", err)
		return nil, err
	}

	b.log.Debug("Fetched share from primary store",
		slog.String("key", shortKey(key)),
		slog.Int("size", len(text)),
		slog.Duration("duration", time.Since(start)))
	return record, nil
}

// Available reports whether the primary store passes its probe.
func (b *LocalStorageBackend) Available(ctx context.Context) bool {
	_, ok := b.available(ctx)
	return ok
}

// Name returns a unique identifier for this store.
func (b *LocalStorageBackend) Name() string {
	return "local-storage"
}

// available resolves the host store and probes it with a sentinel
// write+delete. A quota failure only counts as unavailable when the store is
// empty: an empty store that refuses one tiny entry forbids persistence.
func (b *LocalStorageBackend) available(ctx context.Context) (interfaces.KeyValueStore, bool) {
	capability, ok := b.env.Capability(interfaces.CapabilityLocalStorage)
	if !ok {
		b.log.Debug("Primary store capability missing")
		return nil, false
	}
	store, ok := capability.(interfaces.KeyValueStore)
	if !ok {
		b.log.Warn("Primary store capability has unexpected type",
			slog.String("type", fmt.Sprintf("%T", capability)))
		return nil, false
	}

	err := store.SetItem(ctx, storageTestKey, storageTestKey)
	if err == nil {
		err = store.RemoveItem(ctx, storageTestKey)
	}
	if err == nil {
		return store, true
	}

	if IsQuotaError(err) {
		n, lenErr := store.Len(ctx)
		if lenErr == nil && n != 0 {
			return store, true
		}
	}

	b.log.Debug("Primary store probe failed", "err", err)
	return nil, false
}

// IsQuotaError reports whether err signals an exhausted storage allotment,
// either through ErrQuotaExceeded or a host message mentioning the quota.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, interfaces.ErrQuotaExceeded) || strings.Contains(err.Error(), "storage quota")
}

func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
