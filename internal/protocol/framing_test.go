package protocol

import (
	"bytes"
	"testing"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

func fullRefreshPacket(fill byte) []byte {
	buf := []byte{0xAA, 0x55, 0x01, 0x04, 0x00}
	payload := bytes.Repeat([]byte{fill}, model.FrameBytes)
	return append(buf, payload...)
}

func diffPacket(records ...[9]byte) []byte {
	size := len(records) * 9
	buf := []byte{0xAA, 0x55, 0x02, byte(size >> 8), byte(size & 0xFF)}
	for _, r := range records {
		buf = append(buf, r[:]...)
	}
	return buf
}

func TestDecodeFullRefresh(t *testing.T) {
	var d Decoder
	packets := d.Feed(fullRefreshPacket(0x5A))
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	pkt := packets[0]
	if pkt.Kind != model.PacketFullRefresh {
		t.Fatalf("expected full refresh, got kind %d", pkt.Kind)
	}
	if len(pkt.Full) != model.FrameBytes {
		t.Fatalf("expected %d payload bytes, got %d", model.FrameBytes, len(pkt.Full))
	}
	if pkt.Full[0] != 0x5A || pkt.Full[model.FrameBytes-1] != 0x5A {
		t.Fatalf("payload not copied through")
	}
}

func TestDecodeDiffRecords(t *testing.T) {
	var d Decoder
	rec := [9]byte{3, 1, 2, 3, 4, 5, 6, 7, 8}
	packets := d.Feed(diffPacket(rec, [9]byte{7, 9, 9, 9, 9, 9, 9, 9, 9}))
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	blocks := packets[0].Blocks
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Index != 3 || blocks[1].Index != 7 {
		t.Fatalf("unexpected block indices: %d, %d", blocks[0].Index, blocks[1].Index)
	}
	if blocks[0].Bits != [8]byte{1, 2, 3, 4, 5, 6, 7, 8} {
		t.Fatalf("unexpected block bits: %v", blocks[0].Bits)
	}
}

func TestDecodeTerminatorStopsRecordList(t *testing.T) {
	var d Decoder
	packets := d.Feed(diffPacket(
		[9]byte{0, 1, 1, 1, 1, 1, 1, 1, 1},
		[9]byte{200, 0, 0, 0, 0, 0, 0, 0, 0},
		[9]byte{1, 2, 2, 2, 2, 2, 2, 2, 2},
	))
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	if len(packets[0].Blocks) != 1 {
		t.Fatalf("expected terminator to stop parsing, got %d blocks", len(packets[0].Blocks))
	}
}

func TestDecodePartialFeeds(t *testing.T) {
	var d Decoder
	raw := fullRefreshPacket(0xFF)
	var packets []model.UpdatePacket
	for _, b := range raw {
		packets = append(packets, d.Feed([]byte{b})...)
	}
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet from byte-at-a-time feed, got %d", len(packets))
	}
}

func TestDecodeResyncAfterGarbage(t *testing.T) {
	var d Decoder
	stream := append([]byte{0x00, 0xAA, 0x13, 0x55, 0xAA}, fullRefreshPacket(0x01)...)
	packets := d.Feed(stream)
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet after garbage, got %d", len(packets))
	}
}

func TestDecodeRejectsBadSize(t *testing.T) {
	var d Decoder
	// Diff whose size is not a multiple of the record length.
	bad := []byte{0xAA, 0x55, 0x02, 0x00, 0x08, 1, 2, 3, 4, 5, 6, 7, 8}
	packets := d.Feed(bad)
	if len(packets) != 0 {
		t.Fatalf("expected malformed packet to be skipped, got %d packets", len(packets))
	}
	// A valid packet after the junk still decodes.
	packets = d.Feed(fullRefreshPacket(0x22))
	if len(packets) != 1 {
		t.Fatalf("expected decoder to recover, got %d packets", len(packets))
	}
}

func TestDecodeBackToBackPackets(t *testing.T) {
	var d Decoder
	stream := append(fullRefreshPacket(0x01), diffPacket([9]byte{5, 1, 1, 1, 1, 1, 1, 1, 1})...)
	packets := d.Feed(stream)
	if len(packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(packets))
	}
	if packets[0].Kind != model.PacketFullRefresh || packets[1].Kind != model.PacketRegionDiff {
		t.Fatalf("unexpected packet kinds: %d, %d", packets[0].Kind, packets[1].Kind)
	}
}
