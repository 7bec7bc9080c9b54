// Package pipeline wires the serial receiver, protocol decoder, screen
// reconstructor, field recognition, spectrum assembly and the session
// recorder into one decode worker.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/ocr"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/protocol"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/record"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/screen"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/spectrum"
)

// DefaultQueueDepth bounds the raw chunk queue between the receiver and
// the decode worker. A full queue slows the receiver down instead of
// growing without limit.
const DefaultQueueDepth = 128

const tickInterval = 250 * time.Millisecond

// Source is a byte stream carrying the device's screen protocol. A read
// of (0, nil) means no data this tick.
type Source interface {
	Read(p []byte) (int, error)
	Close() error
}

// Snapshot is one committed view of the pipeline's state. It is replaced
// whole on every decode pass, so readers never see a half-applied update.
type Snapshot struct {
	Screen    []byte
	Fields    map[ocr.Tag]ocr.Field
	Frame     *model.SpectrumFrame
	Active    bool
	Synced    bool
	Stale     bool
	Recording bool
	SessionID int64
	RecordErr error
	Packets   int64
	BytesRead int64
	BytesLost int
	UpdatedAt time.Time
}

// Options tune a pipeline. Zero values select the defaults.
type Options struct {
	QueueDepth     int
	StaleThreshold int
	OCRTolerance   float64
	ConfirmPasses  int
	Recorder       record.Options
}

// Pipeline owns the decode worker state. All decode and recording work
// happens on the worker goroutine; readers only touch the snapshot.
type Pipeline struct {
	src  Source
	opts Options

	decoder     *protocol.Decoder
	recon       *screen.Reconstructor
	engine      *ocr.Engine
	assembler   *spectrum.Assembler
	recorder    *record.Recorder
	recordErr   error
	lastSkipped int
	packets     int64
	bytesRead   int64

	snap atomic.Pointer[Snapshot]
}

// New builds a pipeline reading from src. sink may be nil to run without
// recording, as in replay mode's live preview.
func New(src Source, sink record.Sink, opts Options) *Pipeline {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	p := &Pipeline{
		src:       src,
		opts:      opts,
		decoder:   &protocol.Decoder{},
		recon:     screen.NewReconstructor(opts.StaleThreshold),
		engine:    ocr.NewEngine(ocr.DefaultRegistry(), opts.OCRTolerance, opts.ConfirmPasses),
		assembler: &spectrum.Assembler{},
	}
	if sink != nil {
		p.recorder = record.NewRecorder(sink, opts.Recorder)
	}
	p.snap.Store(&Snapshot{Screen: make([]byte, model.FrameBytes)})
	return p
}

// Snapshot returns the latest committed state. Safe from any goroutine.
func (p *Pipeline) Snapshot() *Snapshot {
	return p.snap.Load()
}

// Run reads and decodes until the context is canceled or the source
// fails. Any open session is finalized before it returns, so stopping a
// live view never leaves a half-written session behind.
func (p *Pipeline) Run(ctx context.Context) error {
	raw := make(chan []byte, p.opts.QueueDepth)
	readErr := make(chan error, 1)

	go p.receive(ctx, raw, readErr)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	defer func() {
		if p.recorder != nil {
			if err := p.recorder.Finalize(time.Now()); err != nil {
				// Best-effort finalize on shutdown.
				_ = err
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case now := <-ticker.C:
			if p.recorder != nil {
				if err := p.recorder.Tick(now); err != nil {
					// The gap finalize failed; the session is already
					// closed in memory, only the close write was lost.
					p.recordErr = err
				}
			}
			p.publish(now)
		case chunk := <-raw:
			if err := p.process(chunk, time.Now()); err != nil {
				return err
			}
		}
	}
}

// receive is the serial read loop. It copies each chunk before queueing
// it; the read buffer is reused.
func (p *Pipeline) receive(ctx context.Context, raw chan<- []byte, readErr chan<- error) {
	buf := make([]byte, 4096)
	for {
		n, err := p.src.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case raw <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case readErr <- fmt.Errorf("serial read: %w", err):
			default:
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (p *Pipeline) process(chunk []byte, now time.Time) error {
	p.bytesRead += int64(len(chunk))
	packets := p.decoder.Feed(chunk)

	// Discarded bytes are evidence of a gap on the line; diffs decoded
	// after one may apply to a screen we never saw.
	if skipped := p.decoder.Skipped(); skipped > p.lastSkipped {
		p.lastSkipped = skipped
		p.recon.Invalidate()
	}

	for _, pkt := range packets {
		dirty, err := p.recon.Apply(pkt)
		if err != nil {
			// Desynced; nothing useful until the next full refresh.
			continue
		}
		p.packets++
		if !dirty {
			// Retransmitted duplicate: the bitmap is unchanged, so this
			// is not a new recognition pass.
			continue
		}
		fb := p.recon.Framebuffer()
		fields := p.engine.Pass(fb)
		frame := p.assembler.Assemble(fb, fields, now)
		if p.recorder != nil {
			if err := p.recorder.Observe(frame, now); err != nil {
				p.abandonSession(err, now)
			} else if p.recordErr != nil && p.recorder.State() == record.StateRecording {
				p.recordErr = nil
			}
		}
		p.commit(fields, frame, now)
	}
	return nil
}

// abandonSession drops the recording after a store failure. Frames
// already written stay on disk; decoding continues without a session
// until recording can start again.
func (p *Pipeline) abandonSession(cause error, now time.Time) {
	p.recordErr = cause
	if err := p.recorder.Finalize(now); err != nil {
		// Best-effort close of the broken session.
		_ = err
	}
}

// commit publishes a full snapshot after a decode pass.
func (p *Pipeline) commit(fields map[ocr.Tag]ocr.Field, frame *model.SpectrumFrame, now time.Time) {
	snap := &Snapshot{
		Screen:    p.recon.Snapshot().Bytes(),
		Fields:    fields,
		Frame:     frame,
		Active:    frame != nil,
		Synced:    p.recon.Synced(),
		Stale:     p.recon.Stale(),
		Packets:   p.packets,
		BytesRead: p.bytesRead,
		BytesLost: p.lastSkipped,
		UpdatedAt: now,
	}
	if p.recorder != nil {
		snap.Recording = p.recorder.State() == record.StateRecording
		snap.SessionID = p.recorder.SessionID()
		snap.RecordErr = p.recordErr
	}
	p.snap.Store(snap)
}

// publish refreshes the volatile parts of the snapshot without a decode
// pass, so the UI sees sync loss and recording stops on a silent line.
func (p *Pipeline) publish(now time.Time) {
	prev := p.snap.Load()
	snap := *prev
	snap.Synced = p.recon.Synced()
	snap.Stale = p.recon.Stale()
	snap.Packets = p.packets
	snap.BytesRead = p.bytesRead
	snap.BytesLost = p.lastSkipped
	snap.UpdatedAt = now
	if p.recorder != nil {
		snap.Recording = p.recorder.State() == record.StateRecording
		snap.SessionID = p.recorder.SessionID()
		snap.RecordErr = p.recordErr
	}
	p.snap.Store(&snap)
}
