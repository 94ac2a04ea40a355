// This file contains the disc image operations behind each command.
package pkg

import (
	"bufio"
	_ "crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/disc"
	"github.com/hansbonini/gcmtools/pkg/gcm"
	"github.com/opencontainers/go-digest"
	"gopkg.in/yaml.v3"
)

// Report formats accepted by Read.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// DiscProcessor handles whole-image operations on files of the local
// filesystem.
type DiscProcessor struct {
	// Out receives reports and dry-run plans.
	Out io.Writer
}

// NewDiscProcessor creates a processor that prints to stdout.
func NewDiscProcessor() *DiscProcessor {
	return &DiscProcessor{Out: os.Stdout}
}

func openImage(path string, flag int) (*os.File, *disc.Disc, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, nil, common.FormatError(common.ErrFailedToOpenImage, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, common.FormatError(common.ErrFailedToStatImage, err)
	}
	d, err := disc.Open(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, d, nil
}

// Extract unpacks an image into outDir.
func (p *DiscProcessor) Extract(isoPath, outDir string, opts disc.ExtractOptions) (disc.ExtractStats, error) {
	f, d, err := openImage(isoPath, os.O_RDONLY)
	if err != nil {
		return disc.ExtractStats{}, err
	}
	defer f.Close()

	if len(d.Table.Files()) == 0 {
		common.LogWarn(common.WarnNoFilesInImage)
	}
	common.LogInfo(common.InfoExtractingImage, isoPath, outDir)
	stats, err := disc.Extract(f, d.Tree(), disc.NewOSProvider(outDir), opts)
	if err != nil {
		return stats, common.FormatError(common.ErrFailedToExtract, err)
	}
	common.LogInfo(common.InfoExtractedFiles, stats.Files, stats.Dirs)
	if len(stats.Failed) > 0 {
		common.LogWarn(common.WarnExtractIncomplete, len(stats.Failed))
	}
	return stats, nil
}

// Rebuild builds a fresh image at isoPath from the directory rootDir. A
// partially written image is removed on failure.
func (p *DiscProcessor) Rebuild(rootDir, isoPath string, cfg RebuildConfig) (plan *disc.Plan, err error) {
	tree, err := disc.FromHost(disc.NewOSProvider(rootDir), disc.HostOptions{Strict: cfg.Strict})
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToBuildTree, err)
	}
	if len(tree.Skipped) > 0 {
		common.LogInfo(common.InfoSkippedHostEntry, len(tree.Skipped))
	}

	common.LogInfo(common.InfoRebuildingImage, isoPath, rootDir)
	out, err := os.Create(isoPath)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToCreateImage, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = common.FormatError(common.ErrFailedToCreateImage, cerr)
		}
		if err != nil {
			os.Remove(isoPath)
		}
	}()

	plan, err = disc.PlanLayout(tree, cfg.LayoutOptions())
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToPlanLayout, err)
	}
	w := bufio.NewWriterSize(out, 1<<20)
	if _, err := disc.Serialize(w, nil, tree, plan); err != nil {
		return nil, common.FormatError(common.ErrFailedToSerialize, err)
	}
	if err := w.Flush(); err != nil {
		return nil, common.FormatError(common.ErrFailedToSerialize, err)
	}
	common.LogInfo(common.InfoRebuiltImage, isoPath, plan.ImageSize, len(plan.Files))
	return plan, nil
}

// SetHeader changes the game ID, and the title when it is not empty, of a
// disc image or of a standalone header file. No other byte changes.
func (p *DiscProcessor) SetHeader(target, gameID, title string) error {
	f, err := os.OpenFile(target, os.O_RDWR, 0)
	if err != nil {
		return common.FormatError(common.ErrFailedToOpenImage, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return common.FormatError(common.ErrFailedToStatImage, err)
	}
	if info.Size() < gcm.HeaderSize {
		return common.FormatErrorString(common.ErrTargetNotHeaderOrDiscFile, "%s is %d bytes", target, info.Size())
	}
	h, err := gcm.ReadHeader(f)
	if err != nil {
		if errors.Is(err, gcm.ErrBadMagic) {
			return common.FormatError(common.ErrTargetNotHeaderOrDiscFile, err)
		}
		return common.FormatError(common.ErrFailedToReadHeader, err)
	}

	if err := h.SetGameID(gameID); err != nil {
		return err
	}
	if title != "" {
		if err := h.SetTitle(title); err != nil {
			return err
		}
	}
	if err := gcm.WriteHeader(f, h); err != nil {
		return common.FormatError(common.ErrFailedToWriteHeader, err)
	}
	common.LogInfo(common.InfoHeaderUpdated, target)
	return nil
}

// RegionReport is one fixed region of the image.
type RegionReport struct {
	Name   string `yaml:"name"`
	Offset int64  `yaml:"offset"`
	Size   int64  `yaml:"size"`
}

// EntryReport is one FST entry.
type EntryReport struct {
	Path   string `yaml:"path"`
	Dir    bool   `yaml:"dir,omitempty"`
	Offset int64  `yaml:"offset,omitempty"`
	Size   int64  `yaml:"size,omitempty"`
	Digest string `yaml:"digest,omitempty"`
}

// DiscReport is what Read prints.
type DiscReport struct {
	GameID     string         `yaml:"game_id"`
	Title      string         `yaml:"title"`
	DiscNumber byte           `yaml:"disc_number"`
	Version    byte           `yaml:"version"`
	MaxFSTSize uint32         `yaml:"max_fst_size"`
	DataStart  int64          `yaml:"data_start"`
	DataEnd    int64          `yaml:"data_end"`
	ImageSize  int64          `yaml:"image_size"`
	Regions    []RegionReport `yaml:"regions"`
	Entries    []EntryReport  `yaml:"entries"`
}

// Inspect builds the report of an image. When paths is not empty only
// those entries, and the contents of those directories, are listed.
func (p *DiscProcessor) Inspect(isoPath string, paths []string, withDigest bool) (*DiscReport, error) {
	f, d, err := openImage(isoPath, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := d.Header
	r := &DiscReport{
		GameID:     h.GameID,
		Title:      h.Title,
		DiscNumber: h.DiscNumber,
		Version:    h.Version,
		MaxFSTSize: h.MaxFSTSize,
		DataStart:  d.DataStart(),
		DataEnd:    d.DataEnd(),
		ImageSize:  d.Size,
	}
	for _, s := range disc.Specials {
		reg := d.SpecialRegion(s)
		r.Regions = append(r.Regions, RegionReport{Name: s.Region(), Offset: reg.Offset, Size: reg.Size})
	}
	fstReg := d.FSTRegion()
	r.Regions = append(r.Regions, RegionReport{Name: gcm.RegionFST, Offset: fstReg.Offset, Size: fstReg.Size})

	tree := d.Tree()
	add := func(path string, n *disc.Node) error {
		e := EntryReport{Path: path, Dir: n.IsDir()}
		if src, ok := n.Source.(disc.InImage); ok {
			e.Offset, e.Size = src.Offset, src.Size
			if withDigest {
				dgst, err := digest.SHA256.FromReader(io.NewSectionReader(f, src.Offset, src.Size))
				if err != nil {
					return common.FormatError(common.ErrFailedToDigestFile, fmt.Errorf("%s: %w", path, err))
				}
				e.Digest = dgst.String()
			}
		}
		r.Entries = append(r.Entries, e)
		return nil
	}

	if len(paths) == 0 {
		paths = []string{""}
	}
	for _, path := range paths {
		n, err := tree.Lookup(path)
		if err != nil {
			return nil, err
		}
		if n != tree.Root {
			if err := add(n.Path(), n); err != nil {
				return nil, err
			}
		}
		if !n.IsDir() {
			continue
		}
		if err := n.Walk(add); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Read prints the report of an image in the given format.
func (p *DiscProcessor) Read(isoPath string, paths []string, format string, withDigest bool) error {
	r, err := p.Inspect(isoPath, paths, withDigest)
	if err != nil {
		return err
	}
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(p.Out)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return common.FormatError(common.ErrFailedToEncodeYAML, err)
		}
		return enc.Close()
	case FormatText, "":
		return r.writeText(p.Out)
	}
	return fmt.Errorf("unknown report format %q", format)
}

func (r *DiscReport) writeText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Game ID:      %s\n", r.GameID)
	fmt.Fprintf(bw, "Title:        %s\n", r.Title)
	fmt.Fprintf(bw, "Disc/Version: %d/%d\n", r.DiscNumber, r.Version)
	fmt.Fprintf(bw, "Max FST size: 0x%X\n", r.MaxFSTSize)
	fmt.Fprintf(bw, "Data region:  0x%X-0x%X\n", r.DataStart, r.DataEnd)
	fmt.Fprintf(bw, "Image size:   0x%X\n\n", r.ImageSize)
	for _, reg := range r.Regions {
		fmt.Fprintf(bw, "%-10s 0x%08X 0x%08X\n", reg.Name, reg.Offset, reg.Size)
	}
	fmt.Fprintln(bw)
	for _, e := range r.Entries {
		if e.Dir {
			fmt.Fprintf(bw, "%-10s %-10s %s/\n", "", "<dir>", e.Path)
			continue
		}
		fmt.Fprintf(bw, "0x%08X %10d %s", e.Offset, e.Size, e.Path)
		if e.Digest != "" {
			fmt.Fprintf(bw, " %s", e.Digest)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// Edit applies steps to the image in place. With dryRun the plan is
// printed and the image is left untouched.
func (p *DiscProcessor) Edit(isoPath string, steps []EditStep, dryRun bool) (*disc.EditPlan, error) {
	ops, err := ResolveEdits(steps)
	if err != nil {
		return nil, err
	}
	flag := os.O_RDWR
	if dryRun {
		flag = os.O_RDONLY
	}
	f, d, err := openImage(isoPath, flag)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	plan, err := disc.PlanEdit(d, ops, disc.DefaultEditOptions())
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToPlanEdit, err)
	}
	common.LogInfo(common.InfoEditPlanned, len(plan.Instructions), plan.BytesMoved, plan.BytesWritten)

	if dryRun {
		for i, ins := range plan.Instructions {
			fmt.Fprintf(p.Out, "%3d  %s\n", i, ins)
		}
		return plan, nil
	}
	if err := disc.ApplyPlan(f, plan); err != nil {
		return plan, common.FormatError(common.ErrFailedToApplyEdit, err)
	}
	common.LogInfo(common.InfoEditApplied, len(steps), filepath.Base(isoPath))
	return plan, nil
}
