// Package protocol decodes the device's incremental screen-update stream
// and wraps serial port access. The decoder is bytes-in/packets-out: feed it
// arbitrary read chunks and it emits complete update packets, resynchronizing
// on the frame header after garbage or partial data.
package protocol

import (
	"encoding/binary"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
)

// Wire framing: AA 55 header, one type byte, big-endian uint16 payload size.
const (
	headerFirst  = 0xAA
	headerSecond = 0x55

	typeFullRefresh = 0x01
	typeRegionDiff  = 0x02

	headerLen = 5 // AA 55 type size_hi size_lo

	diffRecordLen = 1 + model.BlockBytes
	maxDiffLen    = model.BlockCount * diffRecordLen
)

// Decoder incrementally frames the raw byte stream into update packets.
// Malformed packets are skipped silently: framing noise is decode-local and
// recovered by scanning for the next header.
type Decoder struct {
	buf     []byte
	skipped int
}

// Skipped returns the cumulative count of bytes discarded while hunting for
// a header. A growing value means data was lost on the wire; the caller uses
// it as gap evidence for desync handling.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Feed appends raw bytes and returns every complete packet now available,
// in wire order.
func (d *Decoder) Feed(p []byte) []model.UpdatePacket {
	d.buf = append(d.buf, p...)
	var packets []model.UpdatePacket
	for {
		pkt, ok := d.next()
		if !ok {
			return packets
		}
		packets = append(packets, pkt)
	}
}

// next consumes one packet from the buffer, discarding bytes until a valid
// header is found. Returns false when no complete packet remains buffered.
func (d *Decoder) next() (model.UpdatePacket, bool) {
	for {
		start := indexHeader(d.buf)
		if start < 0 {
			// Keep a trailing AA in case its 55 arrives next read.
			if n := len(d.buf); n > 0 && d.buf[n-1] == headerFirst {
				d.skipped += n - 1
				d.buf = d.buf[n-1:]
			} else {
				d.skipped += len(d.buf)
				d.buf = d.buf[:0]
			}
			return model.UpdatePacket{}, false
		}
		d.skipped += start
		d.buf = d.buf[start:]
		if len(d.buf) < headerLen {
			return model.UpdatePacket{}, false
		}

		kind := d.buf[2]
		size := int(binary.BigEndian.Uint16(d.buf[3:5]))
		if !sizeValid(kind, size) {
			// Not a real header; resume scanning past the AA byte.
			d.skipped++
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < headerLen+size {
			return model.UpdatePacket{}, false
		}

		payload := d.buf[headerLen : headerLen+size]
		pkt := parsePayload(kind, payload)
		d.buf = append(d.buf[:0], d.buf[headerLen+size:]...)
		return pkt, true
	}
}

func indexHeader(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == headerFirst && buf[i+1] == headerSecond {
			return i
		}
	}
	return -1
}

func sizeValid(kind byte, size int) bool {
	switch kind {
	case typeFullRefresh:
		return size == model.FrameBytes
	case typeRegionDiff:
		return size > 0 && size%diffRecordLen == 0 && size <= maxDiffLen
	default:
		return false
	}
}

func parsePayload(kind byte, payload []byte) model.UpdatePacket {
	if kind == typeFullRefresh {
		full := make([]byte, model.FrameBytes)
		copy(full, payload)
		return model.UpdatePacket{Kind: model.PacketFullRefresh, Full: full}
	}

	pkt := model.UpdatePacket{Kind: model.PacketRegionDiff}
	for i := 0; i+diffRecordLen <= len(payload); i += diffRecordLen {
		idx := int(payload[i])
		if idx >= model.BlockCount {
			// Index past the block range terminates the record list.
			break
		}
		upd := model.BlockUpdate{Index: idx}
		copy(upd.Bits[:], payload[i+1:i+diffRecordLen])
		pkt.Blocks = append(pkt.Blocks, upd)
	}
	return pkt
}
