package capture

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testFrameSize = 1024

// makeWindow produces the datagrams covering one frame window starting at
// the given stream offset, with payloadSize bytes per datagram and a
// recognizable ramp pattern.
func makeWindow(t *testing.T, startOffset uint64, startSeq uint32, payloadSize int) []Datagram {
	t.Helper()
	if testFrameSize%payloadSize != 0 {
		t.Fatalf("payload size %d does not divide frame size %d", payloadSize, testFrameSize)
	}

	var out []Datagram
	seq := startSeq
	for off := uint64(0); off < testFrameSize; off += uint64(payloadSize) {
		payload := make([]byte, payloadSize)
		for i := range payload {
			payload[i] = byte((startOffset + off + uint64(i)) % 251)
		}
		out = append(out, Datagram{
			SequenceNumber: seq,
			ByteOffset:     startOffset + off,
			Payload:        payload,
		})
		seq++
	}
	return out
}

func ingestAll(t *testing.T, a *Assembler, datagrams []Datagram) [][]byte {
	t.Helper()
	var frames [][]byte
	for _, d := range datagrams {
		frames = append(frames, a.Ingest(d)...)
	}
	return frames
}

func TestIngestInOrderEmitsExactFrame(t *testing.T) {
	a, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	window := makeWindow(t, 0, 1, 256)
	frames := ingestAll(t, a, window)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}

	var want []byte
	for _, d := range window {
		want = append(want, d.Payload...)
	}
	if diff := cmp.Diff(want, frames[0]); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestDroppedPacketZeroFills(t *testing.T) {
	a, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	window := makeWindow(t, 0, 1, 256)
	// Drop the second datagram (offsets 256-511).
	lossy := append([]Datagram{window[0]}, window[2:]...)

	frames := ingestAll(t, a, lossy)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 despite the dropped packet", len(frames))
	}

	frame := frames[0]
	if !bytes.Equal(frame[:256], window[0].Payload) {
		t.Error("bytes before the gap corrupted")
	}
	if !bytes.Equal(frame[256:512], make([]byte, 256)) {
		t.Error("gap left by the dropped packet is not zero-filled")
	}
	if !bytes.Equal(frame[512:768], window[2].Payload) {
		t.Error("bytes after the gap corrupted")
	}
}

func TestIngestReorderWithinWindowIsEquivalent(t *testing.T) {
	inOrder, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}
	reordered, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	window := makeWindow(t, 0, 1, 256)
	wantFrames := ingestAll(t, inOrder, window)

	// Swap two adjacent datagrams in the middle of the window.
	swapped := append([]Datagram(nil), window...)
	swapped[1], swapped[2] = swapped[2], swapped[1]
	gotFrames := ingestAll(t, reordered, swapped)

	if diff := cmp.Diff(wantFrames, gotFrames); diff != "" {
		t.Errorf("reordered ingestion diverged from in-order (-want +got):\n%s", diff)
	}
}

func TestIngestStaleDatagramDropped(t *testing.T) {
	a, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	// Complete three windows so the cursor is well past the first.
	for i := 0; i < 3; i++ {
		ingestAll(t, a, makeWindow(t, uint64(i)*testFrameSize, uint32(i*4+1), 256))
	}

	// A datagram from the first window lags more than one ring size
	// behind the cursor and must be discarded.
	stale := Datagram{SequenceNumber: 1, ByteOffset: 0, Payload: bytes.Repeat([]byte{0xEE}, 256)}
	if frames := a.Ingest(stale); frames != nil {
		t.Fatal("stale datagram emitted a frame")
	}
	if a.StaleDatagrams() != 1 {
		t.Errorf("StaleDatagrams = %d, want 1", a.StaleDatagrams())
	}

	// The next window must be unaffected by the stale write.
	window := makeWindow(t, 3*testFrameSize, 13, 256)
	frames := ingestAll(t, a, window)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	var want []byte
	for _, d := range window {
		want = append(want, d.Payload...)
	}
	if !bytes.Equal(frames[0], want) {
		t.Error("stale datagram altered the next completed frame")
	}
}

func TestIngestEmptyPayloadIgnored(t *testing.T) {
	a, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}
	if frames := a.Ingest(Datagram{SequenceNumber: 1, ByteOffset: 0}); frames != nil {
		t.Error("empty payload should not emit a frame")
	}
}

func TestIngestOffsetBeyondRingDropped(t *testing.T) {
	a, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	wild := Datagram{SequenceNumber: 1, ByteOffset: 10 * testFrameSize, Payload: []byte{1, 2, 3}}
	if frames := a.Ingest(wild); len(frames) != 0 {
		t.Error("far-future offset should not emit a frame")
	}
	if a.StaleDatagrams() != 1 {
		t.Errorf("StaleDatagrams = %d, want 1", a.StaleDatagrams())
	}

	// Normal ingestion still works afterwards.
	frames := ingestAll(t, a, makeWindow(t, 0, 2, 256))
	if len(frames) != 1 {
		t.Errorf("got %d frames after wild datagram, want 1", len(frames))
	}
}

func TestIngestForwardJumpEmitsAllClosedWindows(t *testing.T) {
	a, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	// Half of window 0 arrives, then the stream jumps to the very end of
	// window 1 (the top of the open region). Both windows close: window 0
	// with its received prefix, window 1 with only the tail; gaps read as
	// zeros in each.
	received := makeWindow(t, 0, 1, 256)[:2]
	ingestAll(t, a, received)

	tail := Datagram{
		SequenceNumber: 40,
		ByteOffset:     2*testFrameSize - 256,
		Payload:        bytes.Repeat([]byte{0x7F}, 256),
	}
	frames := a.Ingest(tail)
	if len(frames) != 2 {
		t.Fatalf("jump to the top of the open region closed %d windows, want 2", len(frames))
	}

	if !bytes.Equal(frames[0][:256], received[0].Payload) || !bytes.Equal(frames[0][256:512], received[1].Payload) {
		t.Error("received prefix of window 0 was not emitted intact")
	}
	if !bytes.Equal(frames[0][512:], make([]byte, testFrameSize-512)) {
		t.Error("unwritten span of window 0 is not zero-filled")
	}
	if !bytes.Equal(frames[1][:testFrameSize-256], make([]byte, testFrameSize-256)) {
		t.Error("unwritten span of window 1 is not zero-filled")
	}
	if !bytes.Equal(frames[1][testFrameSize-256:], tail.Payload) {
		t.Error("tail payload missing from window 1")
	}

	// The ring regions both windows occupied must read zeros on reuse.
	window2 := makeWindow(t, 2*testFrameSize, 41, 256)
	short := window2[1:] // first 256 bytes never arrive
	more := ingestAll(t, a, short)
	if len(more) != 1 {
		t.Fatalf("got %d frames, want 1", len(more))
	}
	if !bytes.Equal(more[0][:256], make([]byte, 256)) {
		t.Error("ring region leaked stale bytes on reuse")
	}
}

func TestIngestDatagramClosingTwoWindowsEmitsBoth(t *testing.T) {
	a, err := NewAssembler(testFrameSize)
	if err != nil {
		t.Fatalf("NewAssembler failed: %v", err)
	}

	// One contiguous datagram spanning exactly two windows. Both are
	// gap-free and must come back in order, nothing discarded.
	payload := make([]byte, 2*testFrameSize)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	frames := a.Ingest(Datagram{SequenceNumber: 1, ByteOffset: 0, Payload: payload})
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], payload[:testFrameSize]) {
		t.Error("first window does not match the leading payload bytes")
	}
	if !bytes.Equal(frames[1], payload[testFrameSize:]) {
		t.Error("second window does not match the trailing payload bytes")
	}
	if a.StaleDatagrams() != 0 {
		t.Errorf("StaleDatagrams = %d, want 0", a.StaleDatagrams())
	}
}
