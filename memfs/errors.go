package memfs

import "errors"

var (
	// ErrNotFound is returned when no file has the requested name.
	ErrNotFound = errors.New("file not found")

	// ErrNoSpace is returned when the pool cannot supply the blocks an
	// operation needs.
	ErrNoSpace = errors.New("no space left in block pool")

	// ErrFileTooLarge is returned when a file would need more than
	// MaxBlocksPerFile blocks.
	ErrFileTooLarge = errors.New("file too large")

	// ErrExist is returned when creating a file whose name is taken.
	ErrExist = errors.New("file already exists")

	// ErrNameTooLong is returned for names longer than MaxNameLen bytes.
	ErrNameTooLong = errors.New("file name too long")

	// ErrInvalid is returned for malformed names and negative offsets or
	// sizes.
	ErrInvalid = errors.New("invalid argument")
)
