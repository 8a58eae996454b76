package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/device-share-storage/interfaces"
)

// DefaultQuota is the allotment host stores grant when a location does not
// set one: enough for the fixed read-path request of the secondary store.
const DefaultQuota = requestedBytes

// EnvironmentConfig lists the host stores to expose, as location URIs.
// An empty location or the "none" scheme leaves the capability out.
type EnvironmentConfig struct {
	Primary   string
	Secondary string
	Downloads string

	// VendorPrefixed exposes the filesystem under its vendor-prefixed name.
	VendorPrefixed bool

	// Permissions is exposed as the host permission system when non-nil.
	Permissions interfaces.PermissionQuerier
}

// EnvironmentFactory creates host stores from location URIs and assembles
// them into an Environment.
type EnvironmentFactory struct {
	log        *slog.Logger
	vaultToken string
	tlsAuth    func() (tls.Certificate, error)
}

// NewEnvironmentFactory creates a factory instance.
func NewEnvironmentFactory(logger *slog.Logger) *EnvironmentFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvironmentFactory{log: logger}
}

// WithVaultToken sets the token used by vault:// stores.
func (f *EnvironmentFactory) WithVaultToken(token string) *EnvironmentFactory {
	f.vaultToken = token
	return f
}

// WithTLSAuth configures TLS client authentication for vault:// stores.
func (f *EnvironmentFactory) WithTLSAuth(fn func() (tls.Certificate, error)) *EnvironmentFactory {
	f.tlsAuth = fn
	return f
}

// CreateEnvironment builds an Environment from cfg. Construction errors of
// any configured store are returned; nothing is skipped silently.
func (f *EnvironmentFactory) CreateEnvironment(cfg EnvironmentConfig) (*Environment, error) {
	env := NewEnvironment()

	if cfg.Primary != "" {
		loc, err := interfaces.NewStoreLocation(cfg.Primary)
		if err != nil {
			return nil, fmt.Errorf("primary store: %w", err)
		}
		if loc.Scheme != "none" {
			kv, err := f.KeyValueStoreFor(loc)
			if err != nil {
				return nil, fmt.Errorf("primary store: %w", err)
			}
			env.Provide(interfaces.CapabilityLocalStorage, kv)
		}
	}

	if cfg.Secondary != "" {
		loc, err := interfaces.NewStoreLocation(cfg.Secondary)
		if err != nil {
			return nil, fmt.Errorf("secondary store: %w", err)
		}
		if loc.Scheme != "none" {
			host, err := f.FileSystemFor(loc)
			if err != nil {
				return nil, fmt.Errorf("secondary store: %w", err)
			}
			name := interfaces.CapabilityRequestFileSystem
			if cfg.VendorPrefixed {
				name = interfaces.CapabilityWebkitRequestFileSystem
			}
			env.Provide(name, host)
		}
	}

	if cfg.Downloads != "" {
		loc, err := interfaces.NewStoreLocation(cfg.Downloads)
		if err != nil {
			return nil, fmt.Errorf("downloads: %w", err)
		}
		if loc.Scheme != "none" {
			if loc.Scheme != "file" {
				return nil, fmt.Errorf("downloads: %w: only file:// is supported", interfaces.ErrInvalidLocationURI)
			}
			d, err := NewDirDownloader(filePath(loc), f.log)
			if err != nil {
				return nil, fmt.Errorf("downloads: %w", err)
			}
			env.Provide(interfaces.CapabilityDownload, d)
		}
	}

	if cfg.Permissions != nil {
		env.Provide(interfaces.CapabilityPermissions, cfg.Permissions)
	}

	return env, nil
}

// KeyValueStoreFor creates a primary host store.
//
// Supported schemes:
//   - memory://?quota=5242880 - in-process store
//   - sqlite:///path/to/shares.db?quota=5242880 - SQLite database file
//   - vault://host:8200/mount/path?tls=true - Vault KV v2
func (f *EnvironmentFactory) KeyValueStoreFor(loc interfaces.StoreLocation) (interfaces.KeyValueStore, error) {
	quota, err := loc.GetParamInt64("quota", 0)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "memory":
		f.log.Debug("Creating memory key-value store", slog.Int64("quota", quota))
		return NewMemoryKeyValueStore(quota), nil
	case "sqlite":
		path := filePath(loc)
		if path == "" {
			return nil, fmt.Errorf("%w: empty path in %s", interfaces.ErrInvalidLocationURI, loc)
		}
		return NewSQLiteKeyValueStore(path, quota, f.log)
	case "vault":
		return f.createVaultStore(loc)
	default:
		return nil, fmt.Errorf("%w: %s is not a key-value store scheme", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// FileSystemFor creates a secondary host filesystem.
//
// Supported schemes:
//   - file:///var/lib/shares/?quota=10485760 - local sandbox directory
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix/?region=us-east-1&endpoint=...
func (f *EnvironmentFactory) FileSystemFor(loc interfaces.StoreLocation) (interfaces.FileSystemHost, error) {
	quota, err := loc.GetParamInt64("quota", DefaultQuota)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "file":
		path := filePath(loc)
		if path == "" {
			return nil, fmt.Errorf("%w: empty path in %s", interfaces.ErrInvalidLocationURI, loc)
		}
		f.log.Debug("Creating directory file system", slog.String("path", path))
		return NewDirFileSystem(path, quota, f.log)
	case "s3":
		return f.createS3FileSystem(loc, quota)
	default:
		return nil, fmt.Errorf("%w: %s is not a file system scheme", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// createVaultStore parses vault://host:port/mount/path.
func (f *EnvironmentFactory) createVaultStore(loc interfaces.StoreLocation) (interfaces.KeyValueStore, error) {
	parts := strings.SplitN(strings.Trim(loc.Path, "/"), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: expected vault://host:port/mount/path", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if loc.GetParamBool("insecure") {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, loc.Host)

	var clientCert *tls.Certificate
	if loc.GetParamBool("tls") {
		if f.tlsAuth == nil {
			return nil, fmt.Errorf("vault TLS authentication requested but not configured")
		}
		cert, err := f.tlsAuth()
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS client certificate: %w", err)
		}
		clientCert = &cert
	}

	store, err := NewVaultKeyValueStore(address, parts[0], parts[1], f.vaultToken, clientCert, f.log)
	if err != nil {
		return nil, err
	}
	if !store.Available(context.Background()) {
		f.log.Warn("Vault store is not reachable yet", slog.String("address", address))
	}
	return store, nil
}

// createS3FileSystem parses s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix.
func (f *EnvironmentFactory) createS3FileSystem(loc interfaces.StoreLocation, quota int64) (interfaces.FileSystemHost, error) {
	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.Auth != nil {
		accessKey = loc.Auth.Username()
		secretKey, _ = loc.Auth.Password()
	}

	return NewS3FileSystem(loc.Host, strings.TrimPrefix(loc.Path, "/"), region, loc.GetParam("endpoint"),
		accessKey, secretKey, quota, f.log)
}

// filePath handles file:///absolute and file://./relative forms.
func filePath(loc interfaces.StoreLocation) string {
	if loc.Host == "" {
		return loc.Path
	}
	return loc.Host + "/" + strings.TrimPrefix(loc.Path, "/")
}
