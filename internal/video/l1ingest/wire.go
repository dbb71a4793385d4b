package l1ingest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/courtside-data/replay.vision/internal/video"
)

/*
Detection wire format (version 1)

The camera box emits one UDP packet per processed frame. All integers are
little-endian. Embeddings never travel on the wire; the appearance embedder
runs on the receiving side against the frame imagery.

PACKET STRUCTURE (24-byte header + 24 bytes per detection):
├── Header (24 bytes)
│   ├── magic      uint32  "RVD1" (0x31445652)
│   ├── version    uint8   wire format version, currently 1
│   ├── reserved   uint8
│   ├── count      uint16  number of detection records
│   ├── frame      uint64  frame index, monotonic per stream
│   └── timestamp  uint64  capture time, unix nanoseconds
└── Records (count × 24 bytes)
    ├── cx, cy     float32 box centre in pixels
    ├── w, h       float32 box extent in pixels
    ├── confidence float32 detector score in [0,1]
    ├── class      uint16  detector class id
    └── reserved   uint16

A full frame of 57 detections fits one 1400-byte MTU-safe packet; frames
with more detections are split across packets sharing a frame index.
*/
const (
	DET_PACKET_MAGIC    = 0x31445652 // "RVD1" little-endian
	DET_WIRE_VERSION    = 1
	DET_HEADER_SIZE     = 24
	DET_RECORD_SIZE     = 24
	MAX_DETS_PER_PACKET = (1400 - DET_HEADER_SIZE) / DET_RECORD_SIZE
)

// EncodeFrame packs a detection batch into wire packets. Batches larger
// than MAX_DETS_PER_PACKET are split across packets with the same frame
// index and timestamp.
func EncodeFrame(frame video.FrameDetections) [][]byte {
	dets := frame.Detections
	if len(dets) == 0 {
		return [][]byte{encodePacket(frame, nil)}
	}

	var packets [][]byte
	for start := 0; start < len(dets); start += MAX_DETS_PER_PACKET {
		end := start + MAX_DETS_PER_PACKET
		if end > len(dets) {
			end = len(dets)
		}
		packets = append(packets, encodePacket(frame, dets[start:end]))
	}
	return packets
}

func encodePacket(frame video.FrameDetections, dets []video.Detection) []byte {
	buf := make([]byte, DET_HEADER_SIZE+len(dets)*DET_RECORD_SIZE)
	binary.LittleEndian.PutUint32(buf[0:4], DET_PACKET_MAGIC)
	buf[4] = DET_WIRE_VERSION
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(dets)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(frame.Frame))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(frame.TimestampNs))

	off := DET_HEADER_SIZE
	for _, d := range dets {
		binary.LittleEndian.PutUint32(buf[off+0:], math.Float32bits(d.CX))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(d.CY))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(d.W))
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(d.H))
		binary.LittleEndian.PutUint32(buf[off+16:], math.Float32bits(d.Confidence))
		binary.LittleEndian.PutUint16(buf[off+20:], uint16(d.ClassID))
		off += DET_RECORD_SIZE
	}
	return buf
}

// DecodeFrame parses one wire packet back into a detection batch.
func DecodeFrame(packet []byte) (video.FrameDetections, error) {
	var out video.FrameDetections
	if len(packet) < DET_HEADER_SIZE {
		return out, fmt.Errorf("packet too short: %d bytes, need %d", len(packet), DET_HEADER_SIZE)
	}
	if magic := binary.LittleEndian.Uint32(packet[0:4]); magic != DET_PACKET_MAGIC {
		return out, fmt.Errorf("bad packet magic 0x%08x", magic)
	}
	if version := packet[4]; version != DET_WIRE_VERSION {
		return out, fmt.Errorf("unsupported wire version %d", version)
	}

	count := int(binary.LittleEndian.Uint16(packet[6:8]))
	want := DET_HEADER_SIZE + count*DET_RECORD_SIZE
	if len(packet) != want {
		return out, fmt.Errorf("packet length %d does not match %d records (want %d)", len(packet), count, want)
	}

	out.Frame = int64(binary.LittleEndian.Uint64(packet[8:16]))
	out.TimestampNs = int64(binary.LittleEndian.Uint64(packet[16:24]))
	out.Detections = make([]video.Detection, count)

	off := DET_HEADER_SIZE
	for i := 0; i < count; i++ {
		out.Detections[i] = video.Detection{
			CX:         math.Float32frombits(binary.LittleEndian.Uint32(packet[off+0:])),
			CY:         math.Float32frombits(binary.LittleEndian.Uint32(packet[off+4:])),
			W:          math.Float32frombits(binary.LittleEndian.Uint32(packet[off+8:])),
			H:          math.Float32frombits(binary.LittleEndian.Uint32(packet[off+12:])),
			Confidence: math.Float32frombits(binary.LittleEndian.Uint32(packet[off+16:])),
			ClassID:    int(binary.LittleEndian.Uint16(packet[off+20:])),
		}
		off += DET_RECORD_SIZE
	}
	return out, nil
}
