package gcm

import (
	"errors"
	"fmt"
)

// Format errors
var (
	ErrBadMagic            = errors.New("invalid disc image, GameCube magic not found")
	ErrTruncatedFST        = errors.New("truncated or out-of-bounds FST")
	ErrMalformedFST        = errors.New("malformed FST entry links")
	ErrStringTableTooLarge = errors.New("FST string table grew past 2^24 bytes")
	ErrBadApploader        = errors.New("malformed apploader header")
	ErrBadDOL              = errors.New("malformed DOL header")
	ErrImageTooLarge       = errors.New("disc image does not fit on a GameCube disc")
	ErrRegionTooSmall      = errors.New("replacement does not fit in its disc region")
)

// Path errors
var (
	ErrNotFound            = errors.New("path not found")
	ErrAlreadyExists       = errors.New("path already exists")
	ErrDeleteRoot          = errors.New("cannot delete the root directory")
	ErrNotDirectory        = errors.New("parent is not a directory")
	ErrInvalidName         = errors.New("invalid entry name")
	ErrUnsupportedFileType = errors.New("unsupported host file type")
	ErrRootNotEmpty        = errors.New("destination directory is not empty")
)

// Region names used in error context and logs.
const (
	RegionHeader    = "header"
	RegionApploader = "apploader"
	RegionDOL       = "boot DOL"
	RegionFST       = "FST"
	RegionFileData  = "file data"
)

// FormatError reports a disc structure that could not be decoded.
type FormatError struct {
	Region string
	Offset int64
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s at 0x%X: %v", e.Region, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// PathError reports a tree edit or host path that could not be processed.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error { return e.Err }

// IOError wraps a read, write or seek failure against the disc image.
type IOError struct {
	Region string
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("I/O on %s at 0x%X: %v", e.Region, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func formatErr(region string, offset int64, err error) error {
	return &FormatError{Region: region, Offset: offset, Err: err}
}

func ioErr(region string, offset int64, err error) error {
	return &IOError{Region: region, Offset: offset, Err: err}
}
