package webstorage

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ruteri/device-share-storage/interfaces"
	"github.com/ruteri/device-share-storage/permissions"
	"github.com/ruteri/device-share-storage/sdkhost"
	"github.com/ruteri/device-share-storage/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFileSystemHost counts every request reaching the wrapped host.
type countingFileSystemHost struct {
	interfaces.FileSystemHost
	calls atomic.Int32
}

func (c *countingFileSystemHost) RequestQuota(ctx context.Context, n int64) (int64, error) {
	c.calls.Add(1)
	return c.FileSystemHost.RequestQuota(ctx, n)
}

func (c *countingFileSystemHost) RequestFileSystem(ctx context.Context, n int64) (interfaces.FileSystem, error) {
	c.calls.Add(1)
	return c.FileSystemHost.RequestFileSystem(ctx, n)
}

func newModule(t *testing.T, env *storage.Environment) (*Module, *permissions.Tracker) {
	t.Helper()
	module, tracker := NewFromEnvironment(context.Background(), env, testLogger())
	<-tracker.Initialized()
	return module, tracker
}

func TestWriteThenRead(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKeyValueStore(0)
	env := storage.NewEnvironment().Provide(interfaces.CapabilityLocalStorage, kv)
	module, _ := newModule(t, env)
	module.SetModuleReferences(sdkhost.NewRecorder("", testLogger()))

	record, err := interfaces.NewShareRecord(map[string]string{"shareIndex": "ab12", "data": "0102"})
	require.NoError(t, err)
	require.NoError(t, module.Write(ctx, "deadbeef", record, nil))

	raw, found, err := kv.GetItem(ctx, "deadbeef")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"shareIndex":"ab12","data":"0102"}`, raw)
	assert.Equal(t, string(record), raw)

	got, err := module.Read(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestReadWithoutAnyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("primary disabled", func(t *testing.T) {
		kv := storage.NewMemoryKeyValueStore(0)
		kv.SetDisabled(true)
		module, _ := newModule(t, storage.NewEnvironment().Provide(interfaces.CapabilityLocalStorage, kv))

		_, err := module.Read(ctx, "abc")
		require.Error(t, err)
		assert.ErrorIs(t, err, interfaces.ErrUnableToReadFromStorage)
		assert.Equal(t,
			"unableToReadFromStorageError inputShareFromWebStorage: [2101] Primary storage is not enabled and [3102] No file system capability",
			err.Error())
	})

	t.Run("key missing", func(t *testing.T) {
		kv := storage.NewMemoryKeyValueStore(0)
		module, _ := newModule(t, storage.NewEnvironment().Provide(interfaces.CapabilityLocalStorage, kv))

		_, err := module.Read(ctx, "abc")
		require.Error(t, err)
		assert.Equal(t,
			"unableToReadFromStorageError inputShareFromWebStorage: [2102] No share exists in primary storage and [3102] No file system capability",
			err.Error())
	})
}

func TestReadFallsBackToFileStorage(t *testing.T) {
	ctx := context.Background()
	fsHost, err := storage.NewDirFileSystem(t.TempDir(), storage.DefaultQuota, testLogger())
	require.NoError(t, err)
	env := storage.NewEnvironment().
		Provide(interfaces.CapabilityLocalStorage, storage.NewMemoryKeyValueStore(0)).
		Provide(interfaces.CapabilityWebkitRequestFileSystem, fsHost)
	module, _ := newModule(t, env)

	record := interfaces.ShareRecord(`{"share":{"share":"aa01","shareIndex":"1"},"polynomialID":"p1"}`)
	require.NoError(t, module.ExportToSecondaryStore(ctx, "abc", record))

	got, err := module.Read(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, record, got)

	// No backfill into the primary store.
	_, err = storage.NewLocalStorageBackend(env, testLogger()).Get(ctx, "abc")
	assert.ErrorIs(t, err, interfaces.ErrShareUnavailableInPrimaryStore)
}

func TestQuotaFailureLatchesSecondaryStore(t *testing.T) {
	ctx := context.Background()
	refused, err := storage.NewDirFileSystem(t.TempDir(), 0, testLogger())
	require.NoError(t, err)
	spy := &countingFileSystemHost{FileSystemHost: refused}

	querier := permissions.NewManualQuerier(interfaces.PermissionPrompt)
	env := storage.NewEnvironment().
		Provide(interfaces.CapabilityLocalStorage, storage.NewMemoryKeyValueStore(0)).
		Provide(interfaces.CapabilityRequestFileSystem, spy).
		Provide(interfaces.CapabilityPermissions, querier)
	module, tracker := newModule(t, env)
	require.True(t, module.IsSecondaryStoreUsable())

	_, err = module.Read(ctx, "k1")
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrQuotaExceeded)
	assert.Equal(t, int32(1), spy.calls.Load())
	assert.Equal(t, interfaces.CapabilityDenied, tracker.State())
	assert.False(t, module.IsSecondaryStoreUsable())

	// Any key: the secondary store is no longer attempted.
	_, err = module.Read(ctx, "k2")
	require.Error(t, err)
	assert.Equal(t,
		"unableToReadFromStorageError inputShareFromWebStorage: [2102] No share exists in primary storage",
		err.Error())
	assert.Equal(t, int32(1), spy.calls.Load())

	// A host grant reopens it.
	querier.Set(interfaces.PermissionGranted)
	assert.True(t, module.IsSecondaryStoreUsable())
	_, _ = module.Read(ctx, "k3")
	assert.Equal(t, int32(2), spy.calls.Load())
}

func TestDeviceShareLifecycle(t *testing.T) {
	ctx := context.Background()
	env := storage.NewEnvironment().
		Provide(interfaces.CapabilityLocalStorage, storage.NewMemoryKeyValueStore(0)).
		Provide(interfaces.CapabilityPermissions, permissions.StaticQuerier(interfaces.PermissionGranted))
	module, tracker := newModule(t, env)
	assert.Equal(t, interfaces.CapabilityGranted, tracker.State())

	host, err := sdkhost.GenerateLocalHost(2, 3, testLogger())
	require.NoError(t, err)
	module.SetModuleReferences(host)

	indexes := host.ShareIndexes()
	require.Len(t, indexes, 3)
	require.NoError(t, host.StoreDeviceShare(ctx, indexes[0], map[string]any{"os": "linux"}))

	descriptions := host.Descriptions(indexes[0])
	require.Len(t, descriptions, 1)
	assert.True(t, descriptions[0].Encrypted)
	assert.Contains(t, descriptions[0].Description, `"module":"webStorage"`)

	stored, err := module.GetDeviceShare(ctx)
	require.NoError(t, err)
	storedPoly, _ := stored.PolynomialID()

	// A refresh makes the stored share stale; reading it back catches it up.
	require.NoError(t, host.Refresh())
	latest, err := host.LatestPolynomialID(ctx)
	require.NoError(t, err)
	require.NotEqual(t, storedPoly, latest)

	require.NoError(t, module.InputShareFromWebStorage(ctx))

	upgraded, err := module.GetDeviceShare(ctx)
	require.NoError(t, err)
	upgradedPoly, _ := upgraded.PolynomialID()
	assert.Equal(t, latest, upgradedPoly)

	require.NoError(t, host.InputShareIndex(indexes[1]))
	secret, err := host.Reconstruct()
	require.NoError(t, err)
	assert.Len(t, secret, 32)
}

func TestExportShareIndexDownloadsWithoutFileSystem(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	downloader, err := storage.NewDirDownloader(dir, testLogger())
	require.NoError(t, err)
	env := storage.NewEnvironment().
		Provide(interfaces.CapabilityLocalStorage, storage.NewMemoryKeyValueStore(0)).
		Provide(interfaces.CapabilityDownload, downloader)
	module, _ := newModule(t, env)

	host, err := sdkhost.GenerateLocalHost(2, 2, testLogger())
	require.NoError(t, err)
	module.SetModuleReferences(host)

	idx := host.ShareIndexes()[1]
	require.NoError(t, module.ExportShareIndex(ctx, idx))

	key, err := host.LookupKey(ctx)
	require.NoError(t, err)
	expected, err := host.OutputShareRecord(ctx, idx)
	require.NoError(t, err)

	saved, err := os.ReadFile(filepath.Join(dir, key+".json"))
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(saved))
}
