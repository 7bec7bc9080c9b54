package screen

import (
	"errors"
	"testing"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

func fullPacket(fill byte) model.UpdatePacket {
	full := make([]byte, model.FrameBytes)
	for i := range full {
		full[i] = fill
	}
	return model.UpdatePacket{Kind: model.PacketFullRefresh, Full: full}
}

func diffPacket(index int, fill byte) model.UpdatePacket {
	blk := model.BlockUpdate{Index: index}
	for i := range blk.Bits {
		blk.Bits[i] = fill
	}
	return model.UpdatePacket{Kind: model.PacketRegionDiff, Blocks: []model.BlockUpdate{blk}}
}

func TestApplyFullRefreshSyncs(t *testing.T) {
	r := NewReconstructor(0)
	if r.Synced() {
		t.Fatalf("expected reconstructor to start desynced")
	}
	dirty, err := r.Apply(fullPacket(0xFF))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dirty {
		t.Fatalf("expected first refresh to be dirty")
	}
	if !r.Synced() {
		t.Fatalf("expected sync after full refresh")
	}
	if !r.Framebuffer().Pixel(0, 0) {
		t.Fatalf("expected pixel lit after 0xFF refresh")
	}
}

func TestApplyDuplicateDiffIdempotent(t *testing.T) {
	r := NewReconstructor(0)
	if _, err := r.Apply(fullPacket(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seq := []model.UpdatePacket{
		diffPacket(3, 0xAA),
		diffPacket(10, 0x11),
		diffPacket(3, 0xAA), // retransmitted duplicate
		diffPacket(10, 0x11),
	}
	for _, pkt := range seq {
		if _, err := r.Apply(pkt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	withDup := r.Snapshot().Bytes()

	r2 := NewReconstructor(0)
	if _, err := r2.Apply(fullPacket(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, pkt := range []model.UpdatePacket{diffPacket(3, 0xAA), diffPacket(10, 0x11)} {
		if _, err := r2.Apply(pkt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	withoutDup := r2.Snapshot().Bytes()

	for i := range withDup {
		if withDup[i] != withoutDup[i] {
			t.Fatalf("bitmaps diverge at byte %d: %#x vs %#x", i, withDup[i], withoutDup[i])
		}
	}
}

func TestApplyDiffUnchangedNotDirty(t *testing.T) {
	r := NewReconstructor(0)
	if _, err := r.Apply(fullPacket(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Apply(diffPacket(5, 0x42)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dirty, err := r.Apply(diffPacket(5, 0x42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dirty {
		t.Fatalf("expected duplicate diff to report not dirty")
	}
}

func TestDiffWhileDesyncedDropped(t *testing.T) {
	r := NewReconstructor(0)
	if _, err := r.Apply(diffPacket(0, 0xFF)); !errors.Is(err, ErrDesync) {
		t.Fatalf("expected ErrDesync before first refresh, got %v", err)
	}
	// Recovery on the next full refresh.
	if _, err := r.Apply(fullPacket(0x01)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Synced() {
		t.Fatalf("expected recovery after full refresh")
	}
}

func TestOutOfRangeBlockDesyncs(t *testing.T) {
	r := NewReconstructor(0)
	if _, err := r.Apply(fullPacket(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Apply(diffPacket(model.BlockCount, 0xFF)); !errors.Is(err, ErrDesync) {
		t.Fatalf("expected ErrDesync for out-of-range block")
	}
	if r.Synced() {
		t.Fatalf("expected desync after out-of-range block")
	}
}

func TestStaleAfterConsecutiveDesyncs(t *testing.T) {
	r := NewReconstructor(2)
	for i := 0; i < 2; i++ {
		if _, err := r.Apply(fullPacket(0)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r.Invalidate()
	}
	if !r.Stale() {
		t.Fatalf("expected stale after 2 consecutive desyncs")
	}
	// A full refresh clears the streak.
	if _, err := r.Apply(fullPacket(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Stale() {
		t.Fatalf("expected refresh to clear stale state")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewReconstructor(0)
	if _, err := r.Apply(fullPacket(0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := r.Snapshot()
	if _, err := r.Apply(diffPacket(0, 0xFF)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Pixel(0, 0) {
		t.Fatalf("expected snapshot to be isolated from later writes")
	}
}
