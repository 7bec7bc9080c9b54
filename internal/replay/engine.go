// Package replay plays finalized sessions back frame by frame with
// energy-indexed seeking.
package replay

import (
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

// Mode is the playback state.
type Mode int

const (
	Paused Mode = iota
	Playing
	Seeking
)

// Speeds are the supported playback multipliers, in cycle order.
var Speeds = []int{1, 2, 4, 8, 16}

// Step sizes for frame stepping.
const (
	FineStep   = 1
	CoarseStep = 100
)

// Engine drives playback over an immutable frame sequence. Finalized
// sessions never change, so the engine reads them without locking.
type Engine struct {
	frames  []model.SpectrumFrame
	buckets []model.EnergyBucket

	mode  Mode
	speed int
	idx   int

	// Playback anchor: the wall-clock instant and session offset playback
	// was last (re)started from.
	anchorWall time.Time
	anchorOff  time.Duration
}

// NewEngine returns a paused engine positioned at the first frame.
func NewEngine(frames []model.SpectrumFrame, buckets []model.EnergyBucket) *Engine {
	return &Engine{frames: frames, buckets: buckets, speed: Speeds[0]}
}

// Mode returns the current playback state.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Speed returns the current playback multiplier.
func (e *Engine) Speed() int {
	return e.speed
}

// Index returns the current frame index.
func (e *Engine) Index() int {
	return e.idx
}

// Len returns the session's frame count.
func (e *Engine) Len() int {
	return len(e.frames)
}

// Frame returns the current frame, or nil for an empty session.
func (e *Engine) Frame() *model.SpectrumFrame {
	if len(e.frames) == 0 {
		return nil
	}
	return &e.frames[e.idx]
}

// FrameAt returns the frame at index i without moving the position, or
// nil when i is out of range.
func (e *Engine) FrameAt(i int) *model.SpectrumFrame {
	if i < 0 || i >= len(e.frames) {
		return nil
	}
	return &e.frames[i]
}

// Buckets returns the session's energy index for seek-bar rendering.
func (e *Engine) Buckets() []model.EnergyBucket {
	return e.buckets
}

// Play starts playback from the current frame. Playing from the final
// frame restarts at the beginning.
func (e *Engine) Play(now time.Time) {
	if len(e.frames) == 0 {
		return
	}
	if e.idx == len(e.frames)-1 {
		e.idx = 0
	}
	e.mode = Playing
	e.anchor(now)
}

// Pause stops playback at the current frame.
func (e *Engine) Pause() {
	e.mode = Paused
}

// Toggle flips between playing and paused.
func (e *Engine) Toggle(now time.Time) {
	if e.mode == Playing {
		e.Pause()
	} else {
		e.Play(now)
	}
}

// CycleSpeed advances to the next playback multiplier, wrapping around.
func (e *Engine) CycleSpeed(now time.Time) {
	for i, s := range Speeds {
		if s == e.speed {
			e.speed = Speeds[(i+1)%len(Speeds)]
			break
		}
	}
	if e.mode == Playing {
		e.anchor(now)
	}
}

// Tick advances playback to match wall-clock time scaled by the speed.
// It reports whether the current frame changed. Reaching the final frame
// pauses; playback never loops on its own.
func (e *Engine) Tick(now time.Time) bool {
	if e.mode != Playing || len(e.frames) == 0 {
		return false
	}
	target := e.anchorOff + time.Duration(int64(now.Sub(e.anchorWall))*int64(e.speed))
	prev := e.idx
	for e.idx < len(e.frames)-1 && e.frames[e.idx+1].Offset <= target {
		e.idx++
	}
	if e.idx == len(e.frames)-1 {
		e.mode = Paused
	}
	return e.idx != prev
}

// StepBy moves the position by delta frames, clamped to the session. A
// playing engine pauses first so the step lands on a stable frame.
func (e *Engine) StepBy(delta int) {
	if e.mode == Playing {
		e.Pause()
	}
	e.setIndex(e.idx + delta)
}

// BeginSeek enters the seeking state, as while a seek-bar drag is held.
func (e *Engine) BeginSeek() {
	e.mode = Seeking
}

// EndSeek leaves the seeking state paused at the selected frame.
func (e *Engine) EndSeek() {
	e.mode = Paused
}

// SeekRatio maps a seek-bar position in [0, 1] to the nearest energy
// bucket and lands on that bucket's middle frame, so clicking the same
// spot always reaches the same frame.
func (e *Engine) SeekRatio(ratio float64) {
	if len(e.frames) == 0 {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	if len(e.buckets) == 0 {
		e.setIndex(int(ratio * float64(len(e.frames)-1)))
		return
	}
	bi := int(ratio * float64(len(e.buckets)))
	if bi >= len(e.buckets) {
		bi = len(e.buckets) - 1
	}
	bk := e.buckets[bi]
	e.setIndex(int(bk.FirstFrame + bk.FrameCount/2))
}

// SeekTo jumps straight to a frame index, clamped to the session.
func (e *Engine) SeekTo(idx int) {
	e.setIndex(idx)
}

func (e *Engine) setIndex(idx int) {
	if len(e.frames) == 0 {
		return
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(e.frames)-1 {
		idx = len(e.frames) - 1
	}
	e.idx = idx
	if e.mode == Playing {
		e.anchor(time.Now())
	}
}

func (e *Engine) anchor(now time.Time) {
	e.anchorWall = now
	e.anchorOff = e.frames[e.idx].Offset
}
