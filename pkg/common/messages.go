package common

import (
	"fmt"
	"log"
)

// Global variable to control debug output
var VerboseMode bool = false

// SetVerboseMode enables or disables verbose/debug output
func SetVerboseMode(verbose bool) {
	VerboseMode = verbose
}

// Error messages
const (
	ErrFailedToOpenImage         = "failed to open disc image"
	ErrFailedToCreateImage       = "failed to create disc image"
	ErrFailedToStatImage         = "failed to stat disc image"
	ErrFailedToReadHeader        = "failed to read disc header"
	ErrFailedToWriteHeader       = "failed to write disc header"
	ErrFailedToBuildTree         = "failed to build disc tree"
	ErrFailedToPlanLayout        = "failed to plan layout"
	ErrFailedToSerialize         = "failed to serialize disc image"
	ErrFailedToExtract           = "failed to extract disc image"
	ErrFailedToPlanEdit          = "failed to plan filesystem edit"
	ErrFailedToApplyEdit         = "failed to apply filesystem edit"
	ErrFailedToLoadConfig        = "failed to load config"
	ErrFailedToLoadScript        = "failed to load edit script"
	ErrFailedToParseYAML         = "failed to parse YAML"
	ErrFailedToEncodeYAML        = "failed to encode YAML"
	ErrFailedToDigestFile        = "failed to digest file"
	ErrFailedToLoadPNG           = "failed to load PNG"
	ErrInvalidEditOperation      = "invalid edit operation"
	ErrInvalidFileAlignment      = "file alignment must be a power of two and at least 4"
	ErrMissingEditArguments      = "missing arguments for edit operation"
	ErrTargetNotHeaderOrDiscFile = "target is neither a disc image nor a header file"
)

// Info messages
const (
	InfoExtractingImage  = "Extracting %s into %s"
	InfoExtractedFiles   = "Extracted %d files and %d directories"
	InfoRebuildingImage  = "Rebuilding %s from %s"
	InfoRebuiltImage     = "Wrote %s (%d bytes, %d files)"
	InfoEditPlanned      = "Planned %d instructions (%d bytes moved, %d bytes written)"
	InfoEditApplied      = "Applied %d edits to %s"
	InfoHeaderUpdated    = "Updated header of %s"
	InfoSkippedHostEntry = "Skipped %d unsupported host entries"
	InfoBannerCreated    = "Wrote banner %s (%s)"
)

// Debug messages
const (
	DebugHeaderInfo        = "Header: ID=%s DOL=0x%X FST=0x%X size=0x%X max=0x%X"
	DebugApploaderInfo     = "Apploader: offset=0x%X size=0x%X"
	DebugDOLInfo           = "DOL: offset=0x%X size=0x%X"
	DebugFSTDecoded        = "FST: %d entries, %d bytes"
	DebugFilePlaced        = "Placed %s at 0x%X (%d bytes)"
	DebugExtractingFile    = "Extracting %s (0x%X, %d bytes)"
	DebugCreatingDirectory = "Creating directory %s"
	DebugInstruction       = "Instruction %d: %s"
	DebugSpecialReplaced   = "Replacing special file %s (%d bytes)"
)

// Warning messages
const (
	WarnUnsupportedHostEntry = "Skipping unsupported host entry %s"
	WarnPartialEdit          = "Edit interrupted after %d of %d instructions; image may be partially written"
	WarnFSTCapacityExceeded  = "FST grew to 0x%X bytes past its 0x%X byte capacity; file data shifts by 0x%X"
	WarnNoFilesInImage       = "Disc image carries no FST files"
	WarnExtractFailed        = "Could not extract %s: %v"
	WarnExtractIncomplete    = "%d paths were not extracted"
)

// LogInfo logs an informational message
func LogInfo(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[INFO] "+message, args...)
	} else {
		log.Printf("[INFO] %s", message)
	}
}

// LogWarn logs a warning message
func LogWarn(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[WARN] "+message, args...)
	} else {
		log.Printf("[WARN] %s", message)
	}
}

// LogError logs an error message
func LogError(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[ERROR] "+message, args...)
	} else {
		log.Printf("[ERROR] %s", message)
	}
}

// LogDebug logs a debug message (only if VerboseMode is enabled)
func LogDebug(message string, args ...interface{}) {
	if !VerboseMode {
		return
	}
	if len(args) > 0 {
		log.Printf("[DEBUG] "+message, args...)
	} else {
		log.Printf("[DEBUG] %s", message)
	}
}

// FormatError creates a formatted error with additional context
func FormatError(baseMessage string, details interface{}) error {
	if err, ok := details.(error); ok {
		return fmt.Errorf("%s: %w", baseMessage, err)
	}
	return fmt.Errorf("%s: %v", baseMessage, details)
}

// FormatErrorString creates a formatted error with string details
func FormatErrorString(baseMessage, details string, args ...interface{}) error {
	if len(args) > 0 {
		return fmt.Errorf("%s: "+details, append([]interface{}{baseMessage}, args...)...)
	}
	return fmt.Errorf("%s: %s", baseMessage, details)
}
