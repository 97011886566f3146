package state

import "errors"

var (
	ErrCorruptRecord      = errors.New("state: persisted record is corrupt")
	ErrUnsupportedVersion = errors.New("state: unsupported record version")
	ErrPersistFailed      = errors.New("state: failed to persist record")
)
