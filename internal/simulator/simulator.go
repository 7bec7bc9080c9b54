// Package simulator synthesizes a device screen stream for demos and for
// exercising the pipeline without hardware.
package simulator

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/ocr"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/screen"
)

const (
	baselineRow = 48
	barsTop     = 20
	maxBar      = 27
)

// Device emits the same wire protocol as the radio: one full refresh,
// then region diffs as the spectrum animates. It implements the
// pipeline's source interface.
type Device struct {
	fb       screen.Framebuffer
	prev     []byte
	pending  []byte
	heights  []int
	rng      *rand.Rand
	interval time.Duration
	sentFull bool
	closed   bool
}

// New returns a device with a deterministic animation for the given seed.
// interval paces the frame stream; zero disables pacing (for tests).
func New(seed int64, interval time.Duration) *Device {
	d := &Device{
		rng:      rand.New(rand.NewSource(seed)),
		interval: interval,
		heights:  make([]int, model.SpectrumCols),
	}
	for i := range d.heights {
		d.heights[i] = d.rng.Intn(8)
	}
	return d
}

// Read hands out the next chunk of protocol bytes.
func (d *Device) Read(p []byte) (int, error) {
	if d.closed {
		return 0, io.EOF
	}
	if len(d.pending) == 0 {
		if d.interval > 0 {
			time.Sleep(d.interval)
		}
		d.advance()
		d.pending = d.encode()
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Close stops the stream; subsequent reads fail.
func (d *Device) Close() error {
	d.closed = true
	return nil
}

// advance redraws the screen with the next animation step.
func (d *Device) advance() {
	d.fb.Clear()

	// Telemetry readouts in the device's own fonts.
	ocr.LargeFont.DrawText(&d.fb, 36, 8, "145.50000")
	ocr.SmallFont.DrawText(&d.fb, 0, 57, "144.0000")
	ocr.SmallFont.DrawText(&d.fb, 93, 57, "146.0000")
	ocr.SmallFont.DrawText(&d.fb, 0, 1, "50")
	ocr.SmallFont.DrawText(&d.fb, 0, 9, "-95")
	ocr.SmallFont.DrawText(&d.fb, 0, 15, "25.0")
	ocr.SmallFont.DrawText(&d.fb, 120, 9, "FM")
	ocr.SmallFont.DrawText(&d.fb, 112, 15, "12.5")

	// Baseline plus random-walk bars with a steady carrier near center.
	for x := 0; x < model.ScreenWidth; x++ {
		d.fb.SetPixel(x, baselineRow, true)
	}
	for x, h := range d.heights {
		h += d.rng.Intn(3) - 1
		if h < 0 {
			h = 0
		}
		if h > maxBar {
			h = maxBar
		}
		if x == 64 {
			h = maxBar - d.rng.Intn(3)
		}
		d.heights[x] = h
		for i := 0; i < h; i++ {
			d.fb.SetPixel(x, baselineRow-1-i, true)
		}
	}
}

// encode emits the current screen as wire bytes: the first frame as a
// full refresh, later frames as diffs of the changed 8-byte blocks.
func (d *Device) encode() []byte {
	cur := d.fb.Bytes()
	defer func() { d.prev = cur }()

	if !d.sentFull {
		d.sentFull = true
		return packet(0x01, cur)
	}

	var payload []byte
	for idx := 0; idx < model.BlockCount; idx++ {
		off := idx * model.BlockBytes
		if bytes.Equal(cur[off:off+model.BlockBytes], d.prev[off:off+model.BlockBytes]) {
			continue
		}
		payload = append(payload, byte(idx))
		payload = append(payload, cur[off:off+model.BlockBytes]...)
	}
	if len(payload) == 0 {
		return nil
	}
	return packet(0x02, payload)
}

func packet(kind byte, payload []byte) []byte {
	out := make([]byte, 0, 5+len(payload))
	out = append(out, 0xAA, 0x55, kind)
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)))
	return append(out, payload...)
}
