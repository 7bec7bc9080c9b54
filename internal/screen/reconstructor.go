package screen

import (
	"errors"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

// ErrDesync reports that incremental updates can no longer be trusted to
// reconstruct a valid image. Recoverable: the reconstructor discards the
// buffer and waits for the next full refresh.
var ErrDesync = errors.New("frame desync")

// DefaultStaleThreshold is the consecutive-desync count after which the
// connection is reported stale.
const DefaultStaleThreshold = 5

// Reconstructor owns the single live framebuffer and applies update packets
// to it. It is not safe for concurrent use; the decode worker owns it and
// publishes copies via Snapshot.
type Reconstructor struct {
	fb             Framebuffer
	synced         bool
	seq            uint64
	desyncs        int
	staleThreshold int
}

// NewReconstructor returns a reconstructor that reports a stale connection
// after staleThreshold consecutive desyncs. Zero or negative picks the
// default. Reconstruction starts desynced: nothing is trusted until the
// first full refresh.
func NewReconstructor(staleThreshold int) *Reconstructor {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	return &Reconstructor{staleThreshold: staleThreshold}
}

// Apply applies one update packet. The dirty result reports whether the
// framebuffer actually changed, so downstream recognition only reruns when
// needed. Applying a region diff while desynced, or a diff containing an
// out-of-range block, returns ErrDesync.
func (r *Reconstructor) Apply(pkt model.UpdatePacket) (dirty bool, err error) {
	switch pkt.Kind {
	case model.PacketFullRefresh:
		r.seq++
		old := r.fb.data
		r.fb.Load(pkt.Full)
		r.synced = true
		r.desyncs = 0
		return old != r.fb.data, nil

	case model.PacketRegionDiff:
		if !r.synced {
			// Already waiting for a refresh; drop without stacking counts.
			return false, ErrDesync
		}
		r.seq++
		for _, blk := range pkt.Blocks {
			if blk.Index < 0 || blk.Index >= model.BlockCount {
				return dirty, r.desync()
			}
			off := blk.Index * model.BlockBytes
			// Last write wins per block, so duplicates are idempotent.
			for i, b := range blk.Bits {
				if r.fb.data[off+i] != b {
					r.fb.data[off+i] = b
					dirty = true
				}
			}
		}
		return dirty, nil

	default:
		return false, r.desync()
	}
}

// Invalidate marks the reconstruction desynced, e.g. when the framing layer
// reports lost bytes. The buffer is discarded and diffs are refused until
// the next full refresh.
func (r *Reconstructor) Invalidate() {
	if !r.synced {
		return
	}
	_ = r.desync()
}

// desync counts one desync episode. Each episode runs from losing trust to
// the recovering full refresh; consecutive episodes accumulate toward the
// stale threshold.
func (r *Reconstructor) desync() error {
	r.synced = false
	r.fb.Clear()
	r.desyncs++
	return ErrDesync
}

// Synced reports whether the framebuffer is currently trustworthy.
func (r *Reconstructor) Synced() bool {
	return r.synced
}

// Stale reports whether enough consecutive desyncs accumulated that the
// connection should be surfaced as stale to the caller.
func (r *Reconstructor) Stale() bool {
	return r.desyncs >= r.staleThreshold
}

// Seq returns the count of applied packets.
func (r *Reconstructor) Seq() uint64 {
	return r.seq
}

// Snapshot returns a copy of the framebuffer for concurrent readers.
func (r *Reconstructor) Snapshot() *Framebuffer {
	fb := r.fb
	return &fb
}

// Framebuffer exposes the live framebuffer to same-goroutine consumers
// (recognition runs on the decode worker and must not copy per pass).
func (r *Reconstructor) Framebuffer() *Framebuffer {
	return &r.fb
}
