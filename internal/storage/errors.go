package storage

import "errors"

// Storage errors.
var (
	// ErrUnsupportedVersion indicates the on-disk state was written by a
	// schema version below the minimum this build supports. There is no
	// migration path; loading fails instead.
	ErrUnsupportedVersion = errors.New("unsupported storage version")

	// ErrLockUnavailable indicates the OS-level file lock guarding the
	// data file could not be acquired.
	ErrLockUnavailable = errors.New("storage file is locked by another process")

	// ErrInvalidValue indicates a stored value could not be deserialized
	// into the requested type.
	ErrInvalidValue = errors.New("invalid stored value")
)
