package ocr

import (
	"testing"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/screen"
)

func drawText(fb *screen.Framebuffer, x, y int, font *Font, text string) {
	font.DrawText(fb, x, y, text)
}

func newEngineForTest() *Engine {
	return NewEngine(DefaultRegistry(), 0, 0)
}

func TestRecognizeCenterFrequencyExact(t *testing.T) {
	var fb screen.Framebuffer
	drawText(&fb, 36, 8, LargeFont, "146.52500")

	fields := newEngineForTest().Pass(&fb)
	got := fields[TagCenterFreq]
	if got.Value != "146.52500" {
		t.Fatalf("expected 146.52500, got %q", got.Value)
	}
	if got.Confidence < 1-DefaultTolerance {
		t.Fatalf("expected confidence above threshold, got %f", got.Confidence)
	}
}

func TestRecognizeSmallFontField(t *testing.T) {
	var fb screen.Framebuffer
	drawText(&fb, 0, 57, SmallFont, "144.0000")

	fields := newEngineForTest().Pass(&fb)
	if got := fields[TagStartFreq].Value; got != "144.0000" {
		t.Fatalf("expected 144.0000, got %q", got)
	}
}

func TestRecognizeRightAlignedField(t *testing.T) {
	var fb screen.Framebuffer
	// Modulation is right-aligned in its zone; draw at the right edge.
	drawText(&fb, 120, 9, SmallFont, "FM")

	fields := newEngineForTest().Pass(&fb)
	if got := fields[TagModulation].Value; got != "FM" {
		t.Fatalf("expected FM, got %q", got)
	}
}

func TestRecognizeSurvivesPixelNoise(t *testing.T) {
	var fb screen.Framebuffer
	drawText(&fb, 36, 8, LargeFont, "146.52500")
	// Flip two pixels inside the first digit (under the 35% tolerance).
	fb.SetPixel(36, 8, !fb.Pixel(36, 8))
	fb.SetPixel(37, 9, !fb.Pixel(37, 9))

	fields := newEngineForTest().Pass(&fb)
	if got := fields[TagCenterFreq].Value; got != "146.52500" {
		t.Fatalf("expected noisy readout to still decode, got %q", got)
	}
}

func TestEmptyRegionIsUnknown(t *testing.T) {
	var fb screen.Framebuffer
	fields := newEngineForTest().Pass(&fb)
	for tag, field := range fields {
		if field.Known() {
			t.Fatalf("expected %s to be unknown on a blank screen, got %q", tag, field.Value)
		}
	}
}

func TestStableValueNeedsConfirmation(t *testing.T) {
	e := newEngineForTest()

	var first screen.Framebuffer
	drawText(&first, 0, 57, SmallFont, "144.0000")
	if got := e.Pass(&first)[TagStartFreq].Value; got != "144.0000" {
		t.Fatalf("expected first observation to be adopted, got %q", got)
	}

	var second screen.Framebuffer
	drawText(&second, 0, 57, SmallFont, "430.0000")

	// A single differing pass must not override the stable value.
	if got := e.Pass(&second)[TagStartFreq].Value; got != "144.0000" {
		t.Fatalf("expected single-pass change to be held back, got %q", got)
	}
	// Confirmation on the second consecutive pass flips it.
	if got := e.Pass(&second)[TagStartFreq].Value; got != "430.0000" {
		t.Fatalf("expected confirmed change to land, got %q", got)
	}
}

func TestLoneFlickerDoesNotDisturbStableValue(t *testing.T) {
	e := newEngineForTest()

	var steady screen.Framebuffer
	drawText(&steady, 0, 57, SmallFont, "144.0000")
	var blank screen.Framebuffer

	e.Pass(&steady)
	e.Pass(&blank) // one corrupted pass
	if got := e.Pass(&steady)[TagStartFreq].Value; got != "144.0000" {
		t.Fatalf("expected stable value to survive a lone flicker, got %q", got)
	}
}
