// Package screen reconstructs the device LCD from incremental updates.
package screen

import "github.com/adrianomoraes/k5-spectrum-viewer/internal/model"

// Framebuffer is the fixed 128×64 1-bpp screen image in the device's native
// byte layout: bit index y*128+x, least significant bit first within each
// byte. The layout is preserved byte-for-byte so block diffs apply directly.
type Framebuffer struct {
	data [model.FrameBytes]byte
}

// Pixel reports whether the pixel at (x, y) is lit. Out-of-range
// coordinates are unlit.
func (fb *Framebuffer) Pixel(x, y int) bool {
	if x < 0 || x >= model.ScreenWidth || y < 0 || y >= model.ScreenHeight {
		return false
	}
	idx := y*model.ScreenWidth + x
	return fb.data[idx/8]>>(idx%8)&1 == 1
}

// SetPixel sets or clears the pixel at (x, y). Out-of-range coordinates are
// ignored.
func (fb *Framebuffer) SetPixel(x, y int, on bool) {
	if x < 0 || x >= model.ScreenWidth || y < 0 || y >= model.ScreenHeight {
		return
	}
	idx := y*model.ScreenWidth + x
	if on {
		fb.data[idx/8] |= 1 << (idx % 8)
	} else {
		fb.data[idx/8] &^= 1 << (idx % 8)
	}
}

// Bytes returns the raw framebuffer contents.
func (fb *Framebuffer) Bytes() []byte {
	out := make([]byte, model.FrameBytes)
	copy(out, fb.data[:])
	return out
}

// Load replaces the framebuffer contents. Short input clears the remainder.
func (fb *Framebuffer) Load(raw []byte) {
	n := copy(fb.data[:], raw)
	for i := n; i < model.FrameBytes; i++ {
		fb.data[i] = 0
	}
}

// Clear zeroes the framebuffer.
func (fb *Framebuffer) Clear() {
	fb.data = [model.FrameBytes]byte{}
}

// ColumnPattern reads h rows starting at (x, y) into a column bit pattern:
// bit i set means the pixel at (x, y+i) is lit. This is the unit the anchor
// recognizer compares glyph templates against.
func (fb *Framebuffer) ColumnPattern(x, y, h int) uint16 {
	var col uint16
	for i := 0; i < h; i++ {
		if fb.Pixel(x, y+i) {
			col |= 1 << i
		}
	}
	return col
}
