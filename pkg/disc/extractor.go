package disc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/gcm"
)

// ExtractOptions controls Extract.
type ExtractOptions struct {
	// Force allows extracting into a directory that already has entries.
	Force bool
	// Strict stops at the first path the host refuses. Otherwise the path
	// is recorded in ExtractStats.Failed and extraction goes on.
	Strict bool
}

// ExtractStats counts what Extract wrote.
type ExtractStats struct {
	Files int
	Dirs  int
	Bytes int64
	// Failed lists the paths the host refused in non-strict mode.
	Failed []string
}

// Extract writes the tree into dst: every directory and file in pre-order,
// then the special regions under SystemDataDir. The image is only read.
// The destination root must be usable even in non-strict mode.
func Extract(image io.ReaderAt, t *Tree, dst HostProvider, opts ExtractOptions) (ExtractStats, error) {
	var stats ExtractStats

	entries, err := dst.ListDir("")
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return stats, &gcm.PathError{Op: "extract", Path: "", Err: err}
	case len(entries) > 0 && !opts.Force:
		return stats, &gcm.PathError{Op: "extract", Path: "", Err: gcm.ErrRootNotEmpty}
	}
	if err := dst.CreateDir(""); err != nil {
		return stats, &gcm.PathError{Op: "extract", Path: "", Err: err}
	}

	// host refusals are fatal only in strict mode; image read failures
	// always are
	hostFailed := func(err error) error {
		pe, ok := err.(*gcm.PathError)
		if opts.Strict || !ok {
			return err
		}
		common.LogWarn(common.WarnExtractFailed, pe.Path, pe.Err)
		stats.Failed = append(stats.Failed, pe.Path)
		return nil
	}

	buf := make([]byte, copyChunk)
	err = t.Walk(func(path string, n *Node) error {
		if n.IsDir() {
			common.LogDebug(common.DebugCreatingDirectory, path)
			if err := dst.CreateDir(path); err != nil {
				return hostFailed(&gcm.PathError{Op: "extract", Path: path, Err: err})
			}
			stats.Dirs++
			return nil
		}
		if src, ok := n.Source.(InImage); ok {
			common.LogDebug(common.DebugExtractingFile, path, src.Offset, src.Size)
		}
		if err := writeHostFile(dst, path, image, n.Source, buf); err != nil {
			return hostFailed(err)
		}
		stats.Files++
		stats.Bytes += n.Source.Len()
		return nil
	})
	if err != nil {
		return stats, err
	}

	if err := dst.CreateDir(SystemDataDir); err != nil {
		if err := hostFailed(&gcm.PathError{Op: "extract", Path: SystemDataDir, Err: err}); err != nil {
			return stats, err
		}
	}
	for _, s := range Specials {
		src := t.Special(s)
		if src == nil {
			continue
		}
		if err := writeHostFile(dst, s.SpecialPath(), image, src, buf); err != nil {
			if err := hostFailed(err); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func writeHostFile(dst HostProvider, path string, image io.ReaderAt, src Source, buf []byte) error {
	w, err := dst.CreateFile(path)
	if err != nil {
		return &gcm.PathError{Op: "extract", Path: path, Err: err}
	}
	if err := copySource(w, image, src, buf); err != nil {
		w.Close()
		ioe := &gcm.IOError{Region: gcm.RegionFileData, Err: fmt.Errorf("%s: %w", path, err)}
		if r, ok := src.(InImage); ok {
			ioe.Offset = r.Offset
		}
		return ioe
	}
	if err := w.Close(); err != nil {
		return &gcm.PathError{Op: "extract", Path: path, Err: err}
	}
	return nil
}
