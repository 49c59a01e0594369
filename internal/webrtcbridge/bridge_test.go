package webrtcbridge

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestEncodeVideoFrameLayout(t *testing.T) {
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	frame := encodeVideoFrame(42, true, data)

	if got := len(frame); got != 1+8+1+4+len(data) {
		t.Fatalf("frame length = %d, want %d", got, 1+8+1+4+len(data))
	}
	if frame[0] != frameTypeVideo {
		t.Fatalf("frame[0] = %d, want frameTypeVideo", frame[0])
	}
	if ts := binary.LittleEndian.Uint64(frame[1:9]); ts != 42 {
		t.Fatalf("timestamp = %d, want 42", ts)
	}
	if frame[9] != 1 {
		t.Fatalf("keyframe byte = %d, want 1", frame[9])
	}
	if size := binary.LittleEndian.Uint32(frame[10:14]); size != uint32(len(data)) {
		t.Fatalf("size = %d, want %d", size, len(data))
	}
	if !bytes.Equal(frame[14:], data) {
		t.Fatalf("payload = %x, want %x", frame[14:], data)
	}
}

func TestEncodeVideoFrameNonKeyframe(t *testing.T) {
	frame := encodeVideoFrame(0, false, nil)
	if frame[9] != 0 {
		t.Fatalf("keyframe byte = %d, want 0 for a non-keyframe", frame[9])
	}
}

func TestEncodeAudioFrameLayout(t *testing.T) {
	data := []byte{1, 2, 3}
	frame := encodeAudioFrame(7, data)

	if got := len(frame); got != 1+8+4+len(data) {
		t.Fatalf("frame length = %d, want %d", got, 1+8+4+len(data))
	}
	if frame[0] != frameTypeAudio {
		t.Fatalf("frame[0] = %d, want frameTypeAudio", frame[0])
	}
	if ts := binary.LittleEndian.Uint64(frame[1:9]); ts != 7 {
		t.Fatalf("timestamp = %d, want 7", ts)
	}
	if size := binary.LittleEndian.Uint32(frame[9:13]); size != uint32(len(data)) {
		t.Fatalf("size = %d, want %d", size, len(data))
	}
	if !bytes.Equal(frame[13:], data) {
		t.Fatalf("payload = %x, want %x", frame[13:], data)
	}
}

func TestGetUnknownTabReturnsNotFound(t *testing.T) {
	b := NewBridge(nil, nil)
	if _, err := b.get("missing"); err == nil {
		t.Fatal("expected error for unknown tab")
	}
}

func TestWriteVideoFrameUnknownTab(t *testing.T) {
	b := NewBridge(nil, nil)
	if err := b.WriteVideoFrame("missing", 0, false, nil); err == nil {
		t.Fatal("expected error writing to a session that was never started")
	}
}

func TestCloseUnknownTabIsSafe(t *testing.T) {
	b := NewBridge(nil, nil)
	b.Close("missing")
}

func TestAddICECandidateUnknownTabReturnsError(t *testing.T) {
	b := NewBridge(nil, nil)
	if err := b.AddICECandidate("missing", webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 1 0.0.0.0 0 typ host"}); err == nil {
		t.Fatal("expected error adding ICE candidate for unknown tab")
	}
}
