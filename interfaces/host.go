package interfaces

import (
	"context"
)

// Capability names a host environment may expose.
const (
	CapabilityLocalStorage            = "localStorage"
	CapabilityRequestFileSystem       = "requestFileSystem"
	CapabilityWebkitRequestFileSystem = "webkitRequestFileSystem"
	CapabilityPermissions             = "permissions"
	CapabilityDownload                = "download"
)

// PersistentStoragePermission is the permission name queried before using
// the secondary store.
const PersistentStoragePermission = "persistent-storage"

// HostEnvironment reports the capabilities the host exposes. A missing
// capability is not an error; it tells adapters which path to take.
type HostEnvironment interface {
	Capability(name string) (any, bool)
}

// KeyValueStore is the primary host store: small, synchronous, always present
// unless disabled.
type KeyValueStore interface {
	// SetItem stores value under key. Returns ErrQuotaExceeded when the value
	// does not fit the store's allotment.
	SetItem(ctx context.Context, key, value string) error

	// GetItem returns the value and whether an entry exists.
	GetItem(ctx context.Context, key string) (string, bool, error)

	// RemoveItem deletes key; removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Len returns the number of stored entries.
	Len(ctx context.Context) (int, error)
}

// FileSystemHost grants access to the secondary, quota-granted sandboxed filesystem.
type FileSystemHost interface {
	// RequestQuota asks for a persistent allotment and returns the granted size.
	RequestQuota(ctx context.Context, requestedBytes int64) (int64, error)

	// RequestFileSystem opens the sandbox with the given allotment.
	RequestFileSystem(ctx context.Context, grantedBytes int64) (FileSystem, error)
}

// FileSystem is an opened sandbox.
type FileSystem interface {
	// GetFile opens name, creating it when create is true. A missing file
	// with create false is a rejection wrapping fs.ErrNotExist.
	GetFile(ctx context.Context, name string, create bool) (FileEntry, error)
}

// FileEntry is one file in the sandbox.
type FileEntry interface {
	// Text reads the full contents.
	Text(ctx context.Context) (string, error)

	// Write replaces the contents and returns once the write has completed.
	Write(ctx context.Context, data []byte) error
}

// Downloader triggers a user-driven download of href saved as filename.
type Downloader interface {
	Download(ctx context.Context, filename, href string) error
}

// PermissionState is the answer the host permission system gives.
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// PermissionStatus is a live handle on one permission.
type PermissionStatus interface {
	State() PermissionState

	// OnChange registers fn to run whenever the host reports a new state.
	OnChange(fn func(PermissionState))
}

// PermissionQuerier is the host permission system.
type PermissionQuerier interface {
	Query(ctx context.Context, name string) (PermissionStatus, error)
}

// CapabilityState tracks whether the secondary store may be used.
type CapabilityState int32

const (
	CapabilityUnknown CapabilityState = iota
	CapabilityGranted
	CapabilityDenied
)

func (s CapabilityState) String() string {
	switch s {
	case CapabilityGranted:
		return "granted"
	case CapabilityDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// CapabilityGate is consulted before every secondary store attempt.
type CapabilityGate interface {
	// Usable reports whether the secondary store may be attempted.
	Usable() bool

	// Deny latches the gate closed until the host reports a new state.
	Deny(reason string)
}

// ShareStore is the two-operation contract both store adapters implement.
type ShareStore interface {
	Get(ctx context.Context, key StorageKey) (ShareRecord, error)
	Put(ctx context.Context, key StorageKey, record ShareRecord) error

	// Name returns identifier for logging.
	Name() string
}

// DeviceShareWriter persists the device share on behalf of the SDK.
type DeviceShareWriter func(ctx context.Context, record ShareRecord, deviceInfo map[string]any) error

// ShareHost is the wrapping SDK the storage module plugs into.
type ShareHost interface {
	// LookupKey returns the storage key for the current account.
	LookupKey(ctx context.Context) (StorageKey, error)

	// RecordShareDescription stores non-secret metadata about a share.
	RecordShareDescription(ctx context.Context, shareIndex, description string, encrypted bool) error

	// LatestPolynomialID returns the current share generation.
	LatestPolynomialID(ctx context.Context) (string, error)

	// ReconcileAgainstLatest upgrades a stale share to the latest generation.
	ReconcileAgainstLatest(ctx context.Context, record ShareRecord) (ShareRecord, error)

	// OutputShareRecord returns the record for the share with the given index.
	OutputShareRecord(ctx context.Context, shareIndex string) (ShareRecord, error)

	// InputShareRecord hands a share to the SDK for reconstruction.
	InputShareRecord(ctx context.Context, record ShareRecord) error

	// RegisterDeviceShareWriter installs the device share persistence callback.
	RegisterDeviceShareWriter(fn DeviceShareWriter)
}
