// Package model defines shared data structures.
package model

import "time"

// Screen geometry of the device LCD. The framebuffer is a fixed 1-bpp grid
// and is never resized.
const (
	ScreenWidth  = 128
	ScreenHeight = 64
	FrameBytes   = ScreenWidth * ScreenHeight / 8
)

// PacketKind identifies a decoded wire packet.
type PacketKind int

const (
	// PacketFullRefresh carries a complete framebuffer image.
	PacketFullRefresh PacketKind = iota
	// PacketRegionDiff carries one or more 8-byte block overwrites.
	PacketRegionDiff
)

// Block geometry of a region diff: each diff record overwrites 8 consecutive
// framebuffer bytes addressed by a block index.
const (
	BlockBytes = 8
	BlockCount = FrameBytes / BlockBytes
)

// BlockUpdate overwrites one 8-byte framebuffer block.
type BlockUpdate struct {
	Index int
	Bits  [BlockBytes]byte
}

// UpdatePacket is a decoded wire packet. Ephemeral: consumed immediately by
// the reconstructor.
type UpdatePacket struct {
	Kind   PacketKind
	Full   []byte // full framebuffer image for PacketFullRefresh
	Blocks []BlockUpdate
}

// Region is a rectangle on the screen grid.
type Region struct {
	X, Y, W, H int
}

// SpectrumCols is the fixed amplitude vector length per session.
const SpectrumCols = ScreenWidth

// SpectrumFrame is one assembled spectrum reading. Immutable once appended
// to a session.
type SpectrumFrame struct {
	Seq        int64
	Offset     time.Duration // since session start
	Amplitudes []int
	CenterFreq string
	StartFreq  string
	EndFreq    string
	Modulation string
	Bandwidth  string
	RSSI       string
	Energy     int
}

// Calibration holds per-session render-time constants. Applied at query
// time against raw stored column indices, never baked into frames.
type Calibration struct {
	PixelOffset int
}

// Session groups an ordered, append-only run of spectrum frames.
type Session struct {
	ID          int64
	Identifier  string
	StartedAt   time.Time
	EndedAt     time.Time
	Calibration Calibration
}

// EnergyBucket summarizes the energy of a contiguous frame range. Bucket
// count is fixed per session regardless of length; ranges partition
// [0, frameCount) with no gaps or overlaps.
type EnergyBucket struct {
	Index      int
	FirstFrame int64
	FrameCount int64
	Energy     int
}

// POI is a user-authored bookmark tying a frequency and timestamp to a
// description. SessionID is nil for markers created outside a recording.
type POI struct {
	ID           int64
	SessionID    *int64
	FrequencyMHz float64
	Offset       time.Duration
	CreatedAt    time.Time
	Description  string
}

// SessionSummary is a listing row for the replay menu.
type SessionSummary struct {
	Session
	FrameCount int64
	Duration   time.Duration
	POICount   int64
	MaxEnergy  int
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	Search    string
	Since     *time.Time
	MinEnergy int
}
