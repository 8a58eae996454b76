// Package storage provides the two device share stores and the host stores
// they run on.
//
// # Share Stores
//
// Both adapters implement interfaces.ShareStore and resolve their host
// capability from an interfaces.HostEnvironment on every call:
//
//   - LocalStorageBackend: the primary store. Probes the "localStorage"
//     key-value capability with a sentinel write+delete before each
//     operation and reports PrimaryStoreUnavailable when the probe fails.
//   - FileStorageBackend: the secondary store. Uses the quota-granted
//     sandboxed filesystem exposed as "requestFileSystem" or
//     "webkitRequestFileSystem". Without it, writes fall back to a manual
//     "<key>.json" download and reads report SecondaryStoreUnavailable.
//
// Both persist the record as compact UTF-8 JSON.
//
// # Host Stores
//
// Key-value stores for the primary capability:
//
//   - memory://?quota=N
//   - sqlite:///path/to/shares.db?quota=N
//   - vault://host:8200/mount/path?tls=true
//
// Filesystems for the secondary capability:
//
//   - file:///var/lib/shares/?quota=N
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix/?region=us-east-1
//
// Downloads for manual exports:
//
//   - file:///home/user/Downloads/
//
// The "none" scheme leaves a capability out of the environment.
//
// # Usage Example
//
//	factory := storage.NewEnvironmentFactory(logger)
//	env, err := factory.CreateEnvironment(storage.EnvironmentConfig{
//	    Primary:   "sqlite:///var/lib/shares/primary.db",
//	    Secondary: "file:///var/lib/shares/fs/",
//	    Downloads: "file:///var/lib/shares/downloads/",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create environment: %v", err)
//	}
//
//	primary := storage.NewLocalStorageBackend(env, logger)
//	secondary := storage.NewFileStorageBackend(env, logger)
package storage
