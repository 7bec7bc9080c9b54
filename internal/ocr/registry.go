package ocr

import "github.com/adrianomoraes/k5-spectrum-viewer/internal/model"

// Tag names a semantic field extracted from the screen.
type Tag string

// Semantic fields recognized on the spectrum analyzer screen.
const (
	TagCenterFreq Tag = "center_freq"
	TagStartFreq  Tag = "start_freq"
	TagEndFreq    Tag = "end_freq"
	TagImpedance  Tag = "impedance"
	TagRSSI       Tag = "rssi"
	TagStep       Tag = "step"
	TagModulation Tag = "modulation"
	TagBandwidth  Tag = "bandwidth"
)

// ScanMode selects how glyph cells are walked inside a field region.
type ScanMode int

const (
	// ScanLTR walks fixed glyph cells left to right.
	ScanLTR ScanMode = iota
	// ScanRTL walks right to left for right-aligned fields.
	ScanRTL
	// ScanAnchor locates the decimal-point template at pixel resolution,
	// then walks outward in both directions. Falls back to ScanCentered
	// when no anchor is found.
	ScanAnchor
	// ScanCentered tries every grid offset and keeps the best-scoring pass,
	// for fields the device centers.
	ScanCentered
)

// FieldSpec binds a semantic tag to its screen region, font and scan mode.
// The registry is immutable data loaded once at startup.
type FieldSpec struct {
	Tag    Tag
	Region model.Region
	Font   *Font
	Mode   ScanMode
	Anchor rune // anchor glyph for ScanAnchor
}

// DefaultRegistry returns the field registry for the device's spectrum
// analyzer screen. Regions are the fixed layout of the firmware UI.
func DefaultRegistry() []FieldSpec {
	return []FieldSpec{
		{Tag: TagCenterFreq, Region: model.Region{X: 35, Y: 8, W: 70, H: 7}, Font: LargeFont, Mode: ScanAnchor, Anchor: '.'},
		{Tag: TagStartFreq, Region: model.Region{X: 0, Y: 57, W: 40, H: 5}, Font: SmallFont, Mode: ScanLTR},
		{Tag: TagEndFreq, Region: model.Region{X: 93, Y: 57, W: 40, H: 5}, Font: SmallFont, Mode: ScanLTR},
		{Tag: TagImpedance, Region: model.Region{X: 0, Y: 1, W: 35, H: 5}, Font: SmallFont, Mode: ScanLTR},
		{Tag: TagRSSI, Region: model.Region{X: 0, Y: 9, W: 15, H: 5}, Font: SmallFont, Mode: ScanLTR},
		{Tag: TagStep, Region: model.Region{X: 0, Y: 15, W: 30, H: 5}, Font: SmallFont, Mode: ScanLTR},
		{Tag: TagModulation, Region: model.Region{X: 115, Y: 9, W: 12, H: 5}, Font: SmallFont, Mode: ScanRTL},
		{Tag: TagBandwidth, Region: model.Region{X: 97, Y: 15, W: 30, H: 5}, Font: SmallFont, Mode: ScanRTL},
	}
}
