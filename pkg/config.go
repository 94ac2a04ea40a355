// Package pkg wires the disc packages into the operations exposed by the
// command line: extract, rebuild, set-header, read and in-place edits.
// This file holds the YAML configuration and edit script formats.
package pkg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hansbonini/gcmtools/pkg/common"
	"github.com/hansbonini/gcmtools/pkg/disc"
	"github.com/hansbonini/gcmtools/pkg/gcm"
	"gopkg.in/yaml.v3"
)

// RebuildConfig holds the options of a full rebuild.
type RebuildConfig struct {
	FileAlignment uint32 `yaml:"file_alignment"`
	FSTReserve    uint32 `yaml:"fst_reserve"`
	FullSize      bool   `yaml:"full_size"`
	Strict        bool   `yaml:"strict"`
}

// DefaultRebuildConfig returns the options used when no file is given.
func DefaultRebuildConfig() RebuildConfig {
	return RebuildConfig{FileAlignment: gcm.DefaultFileAlign}
}

// LoadRebuildConfig reads a YAML file over the defaults.
func LoadRebuildConfig(path string) (RebuildConfig, error) {
	cfg := DefaultRebuildConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, common.FormatError(common.ErrFailedToLoadConfig, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, common.FormatError(common.ErrFailedToParseYAML, err)
	}
	return cfg, nil
}

// LayoutOptions converts the config for the layout planner.
func (c RebuildConfig) LayoutOptions() disc.LayoutOptions {
	return disc.LayoutOptions{
		FileAlignment: c.FileAlignment,
		FSTReserve:    c.FSTReserve,
		PadToDiscSize: c.FullSize,
	}
}

// Edit operation names used on the command line and in scripts.
const (
	EditInsert = "insert"
	EditDelete = "delete"
)

// EditStep is one entry of an edit script. Source is a host path, relative
// to the script's directory, and only used by inserts.
type EditStep struct {
	Op     string `yaml:"op"`
	Path   string `yaml:"path"`
	Source string `yaml:"source,omitempty"`
}

// EditScript is the YAML document read by LoadEditScript.
type EditScript struct {
	Edits []EditStep `yaml:"edits"`
}

// LoadEditScript reads an edit script. Relative sources are rebased onto
// the script's directory.
func LoadEditScript(path string) ([]EditStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.FormatError(common.ErrFailedToLoadScript, err)
	}
	var script EditScript
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, common.FormatError(common.ErrFailedToParseYAML, err)
	}
	base := filepath.Dir(path)
	for i := range script.Edits {
		step := &script.Edits[i]
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("%s: edit %d: %w", path, i+1, err)
		}
		if step.Source != "" && !filepath.IsAbs(step.Source) {
			step.Source = filepath.Join(base, step.Source)
		}
	}
	return script.Edits, nil
}

// ParseEditArgs reads a command line sequence of
// "insert <iso-path> <host-path>" and "delete <iso-path>" groups.
func ParseEditArgs(args []string) ([]EditStep, error) {
	var steps []EditStep
	for i := 0; i < len(args); {
		switch args[i] {
		case EditInsert:
			if i+2 >= len(args) {
				return nil, common.FormatErrorString(common.ErrMissingEditArguments, "insert needs <iso-path> <host-path>")
			}
			steps = append(steps, EditStep{Op: EditInsert, Path: args[i+1], Source: args[i+2]})
			i += 3
		case EditDelete:
			if i+1 >= len(args) {
				return nil, common.FormatErrorString(common.ErrMissingEditArguments, "delete needs <iso-path>")
			}
			steps = append(steps, EditStep{Op: EditDelete, Path: args[i+1]})
			i += 2
		default:
			return nil, common.FormatError(common.ErrInvalidEditOperation, args[i])
		}
	}
	return steps, nil
}

func (s EditStep) validate() error {
	switch s.Op {
	case EditInsert:
		if s.Path == "" || s.Source == "" {
			return common.FormatErrorString(common.ErrMissingEditArguments, "insert needs path and source")
		}
	case EditDelete:
		if s.Path == "" {
			return common.FormatErrorString(common.ErrMissingEditArguments, "delete needs path")
		}
	default:
		return common.FormatError(common.ErrInvalidEditOperation, s.Op)
	}
	return nil
}

// ResolveEdits turns steps into tree operations, opening every insert
// source on the host to learn its size.
func ResolveEdits(steps []EditStep) ([]disc.Op, error) {
	ops := make([]disc.Op, 0, len(steps))
	for _, s := range steps {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if s.Op == EditDelete {
			ops = append(ops, disc.DeleteOp(s.Path))
			continue
		}
		abs, err := filepath.Abs(s.Source)
		if err != nil {
			return nil, err
		}
		src, err := disc.NewExternal(disc.NewOSProvider(filepath.Dir(abs)), filepath.Base(abs))
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", s.Path, err)
		}
		ops = append(ops, disc.InsertOp(s.Path, src))
	}
	return ops, nil
}
