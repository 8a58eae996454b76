// Package interfaces defines the core types and contracts of the device share
// storage module, separating them from their implementations.
//
// # Data Model
//
// ShareRecord: an opaque JSON key-share fragment, stored and returned verbatim.
//
// StorageKey: the hex x-coordinate of the account public key, the only
// addressing unit across both stores.
//
// CapabilityState: unknown, granted or denied access to the secondary store.
//
// # Error Taxonomy
//
// StorageError carries a stable numeric code and a message. Codes are
// partitioned by backend:
//
//	1000 default
//	1101 unableToReadFromStorage
//	2101 primary store not enabled
//	2102 no share in primary store
//	3101 no share in file storage
//	3102 no file system capability
//
// Kinds match through errors.Is regardless of appended detail:
//
//	errors.Is(err, interfaces.ErrShareUnavailableInPrimaryStore)
//
// # Host Contracts
//
// HostEnvironment, KeyValueStore, FileSystemHost, FileSystem, FileEntry,
// Downloader and PermissionQuerier describe what the host provides. ShareStore
// is implemented by both store adapters; CapabilityGate by the permission
// tracker; ShareHost by the wrapping SDK.
package interfaces
