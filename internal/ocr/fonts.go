// Package ocr recognizes semantic fields on the reconstructed screen by
// matching a fixed library of bitmap glyph templates. This is not general
// character recognition: the device renders exactly one small and one large
// ROM font at known offsets, so recognition is tolerant pattern matching
// against those templates.
package ocr

import "github.com/adrianomoraes/k5-spectrum-viewer/internal/screen"

// Glyph is one immutable bitmap template: column patterns with bit i
// addressing the pixel i rows below the glyph origin.
type Glyph struct {
	Char rune
	Cols []uint16
}

// Font is a read-only glyph library with fixed cell geometry.
type Font struct {
	Width   int
	Height  int
	Spacing int
	Glyphs  []Glyph
}

// Step returns the horizontal advance between glyph cells.
func (f *Font) Step() int {
	return f.Width + f.Spacing
}

// Find returns the glyph template for a character, or nil.
func (f *Font) Find(ch rune) *Glyph {
	for i := range f.Glyphs {
		if f.Glyphs[i].Char == ch {
			return &f.Glyphs[i]
		}
	}
	return nil
}

// DrawText renders glyphs into a framebuffer with this font's templates,
// one step apart, starting at (x, y). Characters without a template leave
// a blank cell. Used by the device simulator and tests.
func (f *Font) DrawText(fb *screen.Framebuffer, x, y int, text string) {
	for _, ch := range text {
		if glyph := f.Find(ch); glyph != nil {
			for ci, col := range glyph.Cols {
				for bit := 0; bit < f.Height; bit++ {
					if col>>bit&1 == 1 {
						fb.SetPixel(x+ci, y+bit, true)
					}
				}
			}
		}
		x += f.Step()
	}
}

// SmallFont is the device's 3×5 status font.
var SmallFont = &Font{
	Width:   3,
	Height:  5,
	Spacing: 1,
	Glyphs: []Glyph{
		{'0', []uint16{0x1C, 0x11, 0x0F}},
		{'1', []uint16{0x02, 0x1F, 0x00}},
		{'2', []uint16{0x19, 0x15, 0x12}},
		{'3', []uint16{0x11, 0x1D, 0x0A}},
		{'4', []uint16{0x07, 0x04, 0x1F}},
		{'5', []uint16{0x17, 0x15, 0x09}},
		{'6', []uint16{0x1E, 0x15, 0x1D}},
		{'7', []uint16{0x19, 0x05, 0x03}},
		{'8', []uint16{0x1F, 0x15, 0x1F}},
		{'9', []uint16{0x17, 0x15, 0x0F}},
		{'.', []uint16{0x00, 0x10, 0x00}},
		{'-', []uint16{0x04, 0x04, 0x04}},
		{'/', []uint16{0x18, 0x04, 0x03}},
		{'F', []uint16{0x1F, 0x05, 0x05}},
		{'A', []uint16{0x1E, 0x05, 0x1E}},
		{'M', []uint16{0x1F, 0x0C, 0x1F}},
		{'U', []uint16{0x0F, 0x10, 0x1F}},
		{'S', []uint16{0x12, 0x15, 0x09}},
		{'B', []uint16{0x1F, 0x15, 0x0A}},
	},
}

// LargeFont is the device's 6×7 frequency readout font.
var LargeFont = &Font{
	Width:   6,
	Height:  7,
	Spacing: 1,
	Glyphs: []Glyph{
		{'0', []uint16{0x3E, 0x41, 0x41, 0x41, 0x41, 0x3E}},
		{'1', []uint16{0x00, 0x40, 0x64, 0x7F, 0x40, 0x40}},
		{'2', []uint16{0x62, 0x51, 0x51, 0x49, 0x49, 0x46}},
		{'3', []uint16{0x22, 0x41, 0x49, 0x49, 0x49, 0x36}},
		{'4', []uint16{0x18, 0x14, 0x0B, 0x39, 0x7F, 0x02}},
		{'5', []uint16{0x27, 0x45, 0x65, 0x65, 0x65, 0x39}},
		{'6', []uint16{0x3E, 0x4B, 0x49, 0x49, 0x49, 0x32}},
		{'7', []uint16{0x11, 0x11, 0x79, 0x05, 0x03, 0x01}},
		{'8', []uint16{0x36, 0x49, 0x49, 0x49, 0x49, 0x36}},
		{'9', []uint16{0x46, 0x49, 0x49, 0x49, 0x29, 0x1E}},
		{'.', []uint16{0x00, 0x00, 0x60, 0x60, 0x00, 0x00}},
	},
}
