// Package spectrum extracts amplitude readings from the reconstructed
// screen and assembles them into frames.
package spectrum

import (
	"strconv"
	"strings"
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/ocr"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/screen"
)

// Pixel rows of the spectrum area. The device draws bars growing upward
// from a solid baseline on row 48; the bars occupy rows 20 through 48.
const (
	baselineRow = 48
	topRow      = 20
	bottomRow   = 48
)

// MaxAmplitude is the tallest bar a column can hold.
const MaxAmplitude = bottomRow - topRow

// Active reports whether the spectrum analyzer view is on screen. Only
// that view draws the baseline lit across the full width of row 48.
func Active(fb *screen.Framebuffer) bool {
	for x := 0; x < model.ScreenWidth; x++ {
		if !fb.Pixel(x, baselineRow) {
			return false
		}
	}
	return true
}

// Heights reads the per-column bar heights from the spectrum area.
func Heights(fb *screen.Framebuffer) []int {
	out := make([]int, model.SpectrumCols)
	for x := range out {
		h := 0
		for y := topRow; y <= bottomRow; y++ {
			if fb.Pixel(x, y) {
				h++
			}
		}
		// Even columns carry an extra baseline dither pixel.
		if x%2 == 0 && h > 0 {
			h--
		}
		out[x] = h
	}
	return out
}

// Assembler combines screen amplitudes and decoded telemetry fields into
// sequenced frames. Sequence numbers are strictly increasing; the offset
// clock starts at the first assembled frame.
type Assembler struct {
	seq   int64
	start time.Time
}

// Assemble builds the next frame from the current screen. It returns nil
// when the spectrum view is not active, so quiescent screens emit nothing.
func (a *Assembler) Assemble(fb *screen.Framebuffer, fields map[ocr.Tag]ocr.Field, now time.Time) *model.SpectrumFrame {
	if !Active(fb) {
		return nil
	}
	if a.start.IsZero() {
		a.start = now
	}
	frame := &model.SpectrumFrame{
		Seq:        a.seq,
		Offset:     now.Sub(a.start),
		Amplitudes: Heights(fb),
		CenterFreq: fields[ocr.TagCenterFreq].Value,
		StartFreq:  fields[ocr.TagStartFreq].Value,
		EndFreq:    fields[ocr.TagEndFreq].Value,
		Modulation: fields[ocr.TagModulation].Value,
		Bandwidth:  fields[ocr.TagBandwidth].Value,
		RSSI:       fields[ocr.TagRSSI].Value,
	}
	a.seq++
	return frame
}

// Reset restarts sequencing and the offset clock for a new session.
func (a *Assembler) Reset() {
	a.seq = 0
	a.start = time.Time{}
}

// FrequencyAt maps a spectrum column to its frequency in MHz using the
// frame's decoded start/end readouts. The calibration offset shifts the
// column at query time; stored amplitude vectors stay raw, so changing the
// calibration realigns already recorded frames too.
func FrequencyAt(frame *model.SpectrumFrame, cal model.Calibration, col int) (float64, bool) {
	start, ok := ParseMHz(frame.StartFreq)
	if !ok {
		return 0, false
	}
	end, ok := ParseMHz(frame.EndFreq)
	if !ok || end <= start {
		return 0, false
	}
	ratio := float64(col-cal.PixelOffset) / float64(model.SpectrumCols-1)
	return start + ratio*(end-start), true
}

// ParseMHz parses a decoded frequency readout. Readouts with unrecognized
// glyphs fail the parse and are reported as unavailable.
func ParseMHz(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
