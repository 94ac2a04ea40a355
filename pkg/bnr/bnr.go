// Package bnr builds and reads opening.bnr, the banner shown by the
// GameCube menu for an inserted disc.
package bnr

import (
	"bytes"
	"errors"
	"fmt"
)

// Size is the length of a single-language banner file.
const Size = 0x1960

const imageOffset = 0x20

var (
	ErrFieldTooLong = errors.New("banner field too long")
	ErrImageSize    = errors.New("banner image must be 96x32")
	ErrBadMagic     = errors.New("not an opening.bnr file")
)

// Region selects the banner magic.
type Region uint8

const (
	RegionUSJP Region = iota // BNR1
	RegionEU                 // BNR2
)

func (r Region) magic() string {
	if r == RegionEU {
		return "BNR2"
	}
	return "BNR1"
}

func (r Region) String() string {
	if r == RegionEU {
		return "EU"
	}
	return "US/JP"
}

// GameInfo holds the text and picture of a banner.
type GameInfo struct {
	Region             Region
	GameTitle          string
	DeveloperTitle     string
	FullGameTitle      string
	FullDeveloperTitle string
	Description        string
	Banner             *Image
}

type field struct {
	name   string
	offset int
	max    int
	value  *string
}

func (g *GameInfo) fields() []field {
	return []field{
		{"game title", 0x1820, 0x20, &g.GameTitle},
		{"developer title", 0x1840, 0x20, &g.DeveloperTitle},
		{"full game title", 0x1860, 0x40, &g.FullGameTitle},
		{"full developer title", 0x18A0, 0x40, &g.FullDeveloperTitle},
		{"game description", 0x18E0, 0x80, &g.Description},
	}
}

// Validate checks that every text field leaves room for its terminator.
func (g *GameInfo) Validate() error {
	for _, f := range g.fields() {
		if len(*f.value) >= f.max {
			return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrFieldTooLong, f.name, len(*f.value), f.max-1)
		}
	}
	return nil
}

// Create encodes info into a banner file. A nil Banner leaves the picture
// fully transparent.
func Create(info GameInfo) ([]byte, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	out := make([]byte, Size)
	copy(out, info.Region.magic())
	if info.Banner != nil {
		copy(out[imageOffset:], info.Banner[:])
	}
	for _, f := range info.fields() {
		copy(out[f.offset:], *f.value)
	}
	return out, nil
}

// Parse decodes a banner file.
func Parse(data []byte) (*GameInfo, error) {
	if len(data) < Size {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadMagic, len(data))
	}
	info := &GameInfo{Banner: &Image{}}
	switch string(data[:4]) {
	case "BNR1":
		info.Region = RegionUSJP
	case "BNR2":
		info.Region = RegionEU
	default:
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, data[:4])
	}
	copy(info.Banner[:], data[imageOffset:])
	for _, f := range info.fields() {
		raw := data[f.offset : f.offset+f.max]
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		*f.value = string(raw)
	}
	return info, nil
}
