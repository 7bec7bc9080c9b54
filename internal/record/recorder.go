// Package record decides when spectrum activity forms a session and
// appends frames to a persistent sink, maintaining the session's energy
// index as it grows.
package record

import (
	"fmt"
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

// Debounce defaults. Starting requires a short run of active frames so a
// single false positive never opens a session; stopping tolerates a short
// run of inactive frames so a single missed detection never splits one.
const (
	DefaultStartDebounce = 3
	DefaultStopDebounce  = 5
	DefaultGap           = 10 * time.Second
)

// State is the recorder's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
)

// Sink receives session boundaries and frames. Implemented by the store.
type Sink interface {
	BeginSession(start time.Time) (int64, error)
	AppendFrame(sessionID int64, frame *model.SpectrumFrame) error
	FinishSession(sessionID int64, end time.Time, buckets []model.EnergyBucket) error
}

// Options tune the recorder's debounce behavior. Zero values select the
// defaults.
type Options struct {
	StartDebounce int
	StopDebounce  int
	Gap           time.Duration
	Buckets       int
}

// Recorder is the session state machine. Not safe for concurrent use; it
// lives on the decode worker.
type Recorder struct {
	sink Sink
	opts Options

	state      State
	pending    []*model.SpectrumFrame
	pendingAt  []time.Time
	inactive   int
	sessionID  int64
	index      *EnergyIndexBuilder
	lastFrame  time.Time
	baseSeq    int64
	baseOffset time.Duration
}

// NewRecorder returns an idle recorder writing to sink.
func NewRecorder(sink Sink, opts Options) *Recorder {
	if opts.StartDebounce <= 0 {
		opts.StartDebounce = DefaultStartDebounce
	}
	if opts.StopDebounce <= 0 {
		opts.StopDebounce = DefaultStopDebounce
	}
	if opts.Gap <= 0 {
		opts.Gap = DefaultGap
	}
	return &Recorder{
		sink:  sink,
		opts:  opts,
		index: NewEnergyIndexBuilder(opts.Buckets),
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	return r.state
}

// SessionID returns the open session's id, or 0 when idle.
func (r *Recorder) SessionID() int64 {
	if r.state != StateRecording {
		return 0
	}
	return r.sessionID
}

// Observe feeds one decode pass result. frame is nil when the spectrum
// view was not active on this pass. Pending frames observed before the
// start debounce is met are back-filled into the session once it opens,
// so the recording starts at the true first active frame.
func (r *Recorder) Observe(frame *model.SpectrumFrame, now time.Time) error {
	if r.state == StateRecording && now.Sub(r.lastFrame) > r.opts.Gap {
		if err := r.finalize(r.lastFrame); err != nil {
			return err
		}
	}

	if r.state == StateIdle {
		return r.observeIdle(frame, now)
	}
	return r.observeRecording(frame, now)
}

func (r *Recorder) observeIdle(frame *model.SpectrumFrame, now time.Time) error {
	if frame == nil {
		r.clearPending()
		return nil
	}
	r.pending = append(r.pending, frame)
	r.pendingAt = append(r.pendingAt, now)
	if len(r.pending) < r.opts.StartDebounce {
		return nil
	}

	// The session starts at the first back-filled frame, not at the
	// frame that met the debounce.
	id, err := r.sink.BeginSession(r.pendingAt[0])
	if err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}
	r.sessionID = id
	r.state = StateRecording
	r.inactive = 0
	r.index.Reset()
	// Frames renumber against the session's first frame: every session
	// starts at seq 0 with a zero offset.
	r.baseSeq = r.pending[0].Seq
	r.baseOffset = r.pending[0].Offset
	for _, f := range r.pending {
		if err := r.append(f); err != nil {
			return err
		}
	}
	r.clearPending()
	r.lastFrame = now
	return nil
}

func (r *Recorder) observeRecording(frame *model.SpectrumFrame, now time.Time) error {
	if frame == nil {
		r.inactive++
		if r.inactive >= r.opts.StopDebounce {
			return r.finalize(r.lastFrame)
		}
		return nil
	}
	r.inactive = 0
	r.lastFrame = now
	return r.append(frame)
}

func (r *Recorder) clearPending() {
	r.pending = r.pending[:0]
	r.pendingAt = r.pendingAt[:0]
}

func (r *Recorder) append(frame *model.SpectrumFrame) error {
	frame.Seq -= r.baseSeq
	frame.Offset -= r.baseOffset
	frame.Energy = FrameEnergy(frame.Amplitudes)
	if err := r.sink.AppendFrame(r.sessionID, frame); err != nil {
		return fmt.Errorf("failed to append frame: %w", err)
	}
	r.index.Add(frame.Energy)
	return nil
}

// Tick lets the recorder notice a silent line between decode passes. It
// finalizes the open session when no frame has arrived within the gap
// threshold.
func (r *Recorder) Tick(now time.Time) error {
	if r.state == StateRecording && now.Sub(r.lastFrame) > r.opts.Gap {
		return r.finalize(r.lastFrame)
	}
	return nil
}

// Finalize force-closes an open session, as when switching from live
// recording to replay. Idle recorders ignore it.
func (r *Recorder) Finalize(now time.Time) error {
	if r.state != StateRecording {
		r.clearPending()
		return nil
	}
	end := r.lastFrame
	if end.IsZero() {
		end = now
	}
	return r.finalize(end)
}

func (r *Recorder) finalize(end time.Time) error {
	err := r.sink.FinishSession(r.sessionID, end, r.index.Buckets())
	r.state = StateIdle
	r.sessionID = 0
	r.inactive = 0
	r.clearPending()
	if err != nil {
		return fmt.Errorf("failed to finish session: %w", err)
	}
	return nil
}
