package interfaces

import (
	"errors"
	"fmt"
)

// Error codes are partitioned by backend: 1xxx module, 2xxx primary store,
// 3xxx secondary store. Codes are stable across releases.
const (
	CodeDefault                          = 1000
	CodeUnableToReadFromStorage          = 1101
	CodePrimaryStoreUnavailable          = 2101
	CodeShareUnavailableInPrimaryStore   = 2102
	CodeShareUnavailableInSecondaryStore = 3101
	CodeSecondaryStoreUnavailable        = 3102
)

var errorMessages = map[int]string{
	CodeDefault: "default",
	// module
	CodeUnableToReadFromStorage: "unableToReadFromStorage",
	// primary store
	CodePrimaryStoreUnavailable:        "Primary storage is not enabled",
	CodeShareUnavailableInPrimaryStore: "No share exists in primary storage",
	// secondary store
	CodeShareUnavailableInSecondaryStore: "No share exists in file storage",
	CodeSecondaryStoreUnavailable:        "No file system capability",
}

// StorageError is the typed failure reported by the share storage module.
// The code fully determines the base message; any detail is appended to it.
type StorageError struct {
	Code    int
	Message string

	// Causes holds the underlying failures a combined error was built from.
	Causes []error
}

// Error returns the full message, base text followed by detail.
func (e *StorageError) Error() string {
	return e.Message
}

// Is reports whether target is a StorageError with the same code, so that
// errors.Is(err, ErrPrimaryStoreUnavailable) matches any instance of the kind.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	return ok && t.Code == e.Code
}

// Unwrap exposes the underlying causes of a combined error.
func (e *StorageError) Unwrap() []error {
	return e.Causes
}

// FromCode builds a StorageError for code with extra appended to the base message.
// Unknown codes fall back to the default message.
func FromCode(code int, extra string) *StorageError {
	base, ok := errorMessages[code]
	if !ok {
		base = errorMessages[CodeDefault]
	}
	return &StorageError{Code: code, Message: base + extra}
}

// DefaultError builds the catch-all module error.
func DefaultError(extra string) *StorageError {
	return FromCode(CodeDefault, extra)
}

// UnableToReadFromStorage reports that every backend was exhausted. The
// causes are kept for errors.Is/As; their messages belong in extra.
func UnableToReadFromStorage(extra string, causes ...error) *StorageError {
	e := FromCode(CodeUnableToReadFromStorage, extra)
	e.Causes = causes
	return e
}

func PrimaryStoreUnavailable(extra string) *StorageError {
	return FromCode(CodePrimaryStoreUnavailable, extra)
}

func ShareUnavailableInPrimaryStore(extra string) *StorageError {
	return FromCode(CodeShareUnavailableInPrimaryStore, extra)
}

func ShareUnavailableInSecondaryStore(extra string) *StorageError {
	return FromCode(CodeShareUnavailableInSecondaryStore, extra)
}

func SecondaryStoreUnavailable(extra string) *StorageError {
	return FromCode(CodeSecondaryStoreUnavailable, extra)
}

var (
	// Kind markers for errors.Is checks.
	ErrUnableToReadFromStorage          = FromCode(CodeUnableToReadFromStorage, "")
	ErrPrimaryStoreUnavailable          = FromCode(CodePrimaryStoreUnavailable, "")
	ErrShareUnavailableInPrimaryStore   = FromCode(CodeShareUnavailableInPrimaryStore, "")
	ErrShareUnavailableInSecondaryStore = FromCode(CodeShareUnavailableInSecondaryStore, "")
	ErrSecondaryStoreUnavailable        = FromCode(CodeSecondaryStoreUnavailable, "")

	// ErrQuotaExceeded is returned by host stores when a write does not fit
	// the storage allotment, or when the user refused to grant one.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrCapabilityUnsupported is returned when the host environment does not
	// expose a capability at all.
	ErrCapabilityUnsupported = errors.New("capability not supported by host")

	// ErrInvalidLocationURI is returned when a host store location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// PrettyPrintError renders err for embedding into a combined message,
// prefixing taxonomy errors with their code.
func PrettyPrintError(err error) string {
	if err == nil {
		return "<nil>"
	}
	var se *StorageError
	if errors.As(err, &se) {
		return fmt.Sprintf("[%d] %s", se.Code, se.Message)
	}
	return err.Error()
}
