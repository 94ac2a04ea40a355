package bnr

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
)

// Banner dimensions and tiling
const (
	Width  = 96
	Height = 32

	tileSize  = 4
	tilesX    = Width / tileSize
	tilesY    = Height / tileSize
	ImageSize = Width * Height * 2
)

// Color is a 16-bit RGB5A1 pixel: a 1-bit alpha over 5 bits per channel.
type Color uint16

// ColorFromRGBA quantizes an 8-bit per channel color.
func ColorFromRGBA(r, g, b, a uint8) Color {
	c := Color(r>>3)<<10 | Color(g>>3)<<5 | Color(b>>3)
	if a >= 0x80 {
		c |= 0x8000
	}
	return c
}

// ToRGBA expands the color back to 8 bits per channel.
func (c Color) ToRGBA() color.RGBA {
	out := color.RGBA{
		R: uint8(c>>10&0x1F) << 3,
		G: uint8(c>>5&0x1F) << 3,
		B: uint8(c&0x1F) << 3,
	}
	if c&0x8000 != 0 {
		out.A = 0xFF
	}
	return out
}

// Image is a 96x32 banner in its on-disc layout: 4x4 pixel tiles, left to
// right then top to bottom, each pixel a big-endian Color.
type Image [ImageSize]byte

func pixelOffset(x, y int) int {
	tile := (y/tileSize)*tilesX + x/tileSize
	inTile := (y%tileSize)*tileSize + x%tileSize
	return (tile*tileSize*tileSize + inTile) * 2
}

// At returns the pixel at (x, y).
func (m *Image) At(x, y int) Color {
	off := pixelOffset(x, y)
	return Color(m[off])<<8 | Color(m[off+1])
}

// Set stores the pixel at (x, y).
func (m *Image) Set(x, y int, c Color) {
	off := pixelOffset(x, y)
	m[off] = byte(c >> 8)
	m[off+1] = byte(c)
}

// FromRGBA converts a 96x32 image. Other sizes are rejected; use LoadImage
// to scale arbitrary pictures.
func FromRGBA(img image.Image) (*Image, error) {
	b := img.Bounds()
	if b.Dx() != Width || b.Dy() != Height {
		return nil, fmt.Errorf("%w: got %dx%d", ErrImageSize, b.Dx(), b.Dy())
	}
	out := &Image{}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out.Set(x, y, ColorFromRGBA(c.R, c.G, c.B, c.A))
		}
	}
	return out, nil
}

// ToRGBA decodes the banner into a standard image.
func (m *Image) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			img.SetRGBA(x, y, m.At(x, y).ToRGBA())
		}
	}
	return img
}

// LoadImage reads a PNG, JPEG or BMP file and scales it to the banner size
// when needed.
func LoadImage(path string) (*Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open banner image %s: %w", path, err)
	}
	if b := img.Bounds(); b.Dx() != Width || b.Dy() != Height {
		img = transform.Resize(img, Width, Height, transform.Linear)
	}
	return FromRGBA(img)
}

// SaveImage writes the banner to path as a PNG.
func (m *Image) SaveImage(path string) error {
	if err := imgio.Save(path, m.ToRGBA(), imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save banner image %s: %w", path, err)
	}
	return nil
}
