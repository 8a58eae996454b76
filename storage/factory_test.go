package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ruteri/device-share-storage/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentFactory_KeyValueStoreFor(t *testing.T) {
	factory := NewEnvironmentFactory(testLogger())
	dbPath := filepath.Join(t.TempDir(), "shares.db")

	tests := []struct {
		name      string
		uri       string
		expectErr bool
		checkType func(t *testing.T, kv interfaces.KeyValueStore)
	}{
		{
			name: "memory",
			uri:  "memory://?quota=100",
			checkType: func(t *testing.T, kv interfaces.KeyValueStore) {
				assert.IsType(t, &MemoryKeyValueStore{}, kv)
			},
		},
		{
			name: "sqlite",
			uri:  "sqlite://" + dbPath,
			checkType: func(t *testing.T, kv interfaces.KeyValueStore) {
				require.IsType(t, &SQLiteKeyValueStore{}, kv)
				kv.(*SQLiteKeyValueStore).Close()
			},
		},
		{name: "bad quota", uri: "memory://?quota=lots", expectErr: true},
		{name: "file system scheme", uri: "file:///tmp", expectErr: true},
		{name: "vault without path", uri: "vault://127.0.0.1:8200/secret", expectErr: true},
		{name: "vault tls without auth", uri: "vault://127.0.0.1:8200/secret/shares?tls=true", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := interfaces.NewStoreLocation(tt.uri)
			require.NoError(t, err)

			kv, err := factory.KeyValueStoreFor(loc)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.checkType(t, kv)
		})
	}
}

func TestEnvironmentFactory_CreateEnvironment(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	factory := NewEnvironmentFactory(testLogger())

	env, err := factory.CreateEnvironment(EnvironmentConfig{
		Primary:        "memory://",
		Secondary:      "file://" + filepath.Join(dir, "files"),
		Downloads:      "file://" + filepath.Join(dir, "downloads"),
		VendorPrefixed: true,
	})
	require.NoError(t, err)

	_, ok := env.Capability(interfaces.CapabilityLocalStorage)
	assert.True(t, ok)
	_, ok = env.Capability(interfaces.CapabilityRequestFileSystem)
	assert.False(t, ok)
	_, ok = env.Capability(interfaces.CapabilityWebkitRequestFileSystem)
	assert.True(t, ok)
	_, ok = env.Capability(interfaces.CapabilityDownload)
	assert.True(t, ok)
	_, ok = env.Capability(interfaces.CapabilityPermissions)
	assert.False(t, ok)

	record := mustRecord(t, sampleRecord)
	secondary := NewFileStorageBackend(env, testLogger())
	require.NoError(t, secondary.Put(ctx, "k", record))
	got, err := secondary.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestEnvironmentFactory_None(t *testing.T) {
	env, err := NewEnvironmentFactory(testLogger()).CreateEnvironment(EnvironmentConfig{
		Primary:   "none://",
		Secondary: "none://",
	})
	require.NoError(t, err)

	assert.False(t, NewLocalStorageBackend(env, testLogger()).Available(context.Background()))
	assert.False(t, NewFileStorageBackend(env, testLogger()).IsSupported())
}

func TestEnvironmentFactory_Errors(t *testing.T) {
	factory := NewEnvironmentFactory(testLogger())

	for _, cfg := range []EnvironmentConfig{
		{Primary: "ftp://host/x"},
		{Secondary: "memory://"},
		{Downloads: "s3://bucket/prefix"},
	} {
		_, err := factory.CreateEnvironment(cfg)
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
	}
}

func TestEnvironment_Withdraw(t *testing.T) {
	env := NewEnvironment().Provide("x", 1).Provide("nil", nil)
	v, ok := env.Capability("x")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = env.Capability("nil")
	assert.False(t, ok)

	env.Withdraw("x")
	_, ok = env.Capability("x")
	assert.False(t, ok)
}
