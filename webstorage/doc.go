// Package webstorage persists a device key share across sessions with a
// fallback chain over two host stores.
//
// Module.Read tries the primary key-value store first. When that fails and
// the permission tracker allows it, the secondary filesystem store is tried.
// If both fail, a single UnableToReadFromStorage error carries both causes:
//
//	unableToReadFromStorageError inputShareFromWebStorage: [2102] No share exists in primary storage and [3102] No file system capability
//
// A quota failure on the secondary store latches the tracker to denied so
// the user is not prompted on every read.
//
// Module.Write stores on the primary store only and records a share
// description with the SDK. Module.ExportToSecondaryStore is the only way a
// share reaches the secondary store.
//
// Each backend is attempted at most once per call, and nothing is retried.
// Calls for the same key are not serialized; the host store decides the
// winner of racing writes.
package webstorage
