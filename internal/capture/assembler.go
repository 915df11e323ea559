package capture

import "fmt"

// Assembler reconstructs fixed-size frames from the capture card's lossy,
// possibly reordered datagram stream.
//
// Payload bytes are written into a ring of twice the frame size, addressed
// by the datagram's declared byte offset modulo the ring size. A frame
// window closes when the high watermark reaches its end; bytes no datagram
// covered read as zero, so a lost packet leaves a zero-filled gap in the
// emitted frame instead of stalling the pipeline.
type Assembler struct {
	frameSize int
	ring      []byte

	// highWater is the exclusive upper bound of stream offsets written so
	// far. emitted is the stream offset up to which frames have been
	// handed out; it is always a multiple of frameSize, so a window never
	// wraps inside the two-frame ring.
	highWater uint64
	emitted   uint64

	staleDatagrams uint64
}

// NewAssembler creates an Assembler for the given frame size. The ring is
// allocated once; per-datagram ingestion does not allocate until a frame
// completes.
func NewAssembler(frameSize int) (*Assembler, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size %d", frameSize)
	}
	return &Assembler{
		frameSize: frameSize,
		ring:      make([]byte, 2*frameSize),
	}, nil
}

// FrameSize returns the configured frame size in bytes.
func (a *Assembler) FrameSize() int { return a.frameSize }

// StaleDatagrams returns how many datagrams were dropped because they
// referred to an already-emitted window or fell outside the ring.
func (a *Assembler) StaleDatagrams() uint64 { return a.staleDatagrams }

// Ingest writes one datagram into the ring and returns the frame windows it
// closed, oldest first. A single datagram can close at most two windows.
// Out-of-order datagrams within an open window are accepted unconditionally;
// last write wins on overlap.
func (a *Assembler) Ingest(d Datagram) [][]byte {
	if len(d.Payload) == 0 {
		return nil
	}

	ringSize := uint64(len(a.ring))
	start := d.ByteOffset
	end := start + uint64(len(d.Payload))
	payload := d.Payload

	// Entirely behind the emitted boundary: the window it belongs to has
	// already been handed out. Dropped, counted, never an error.
	if end <= a.emitted {
		a.staleDatagrams++
		return nil
	}

	// Beyond the open region: placing it would clobber a window that has
	// not been emitted yet. Malformed or hopelessly ahead; drop it.
	if start >= a.emitted+ringSize {
		a.staleDatagrams++
		return nil
	}

	// Clamp the already-emitted prefix of a straddling datagram.
	if start < a.emitted {
		payload = payload[a.emitted-start:]
		start = a.emitted
	}
	// Clamp the tail that would overrun the open region.
	if end > a.emitted+ringSize {
		payload = payload[:a.emitted+ringSize-start]
		end = a.emitted + ringSize
	}

	pos := start % ringSize
	n := copy(a.ring[pos:], payload)
	copy(a.ring, payload[n:])

	if end > a.highWater {
		a.highWater = end
	}

	// Every byte inside the open region is either a clamped payload write
	// or a zero left by the previous emission, so a closed window's
	// contents are always trustworthy and every closed window is emitted.
	var frames [][]byte
	frameSize := uint64(a.frameSize)
	for a.highWater >= a.emitted+frameSize {
		off := a.emitted % ringSize
		frame := make([]byte, a.frameSize)
		copy(frame, a.ring[off:off+frameSize])
		a.zeroWindow(off)
		a.emitted += frameSize
		frames = append(frames, frame)
	}
	return frames
}

// zeroWindow clears one frame window so that its region reads as zeros the
// next time the ring passes over it.
func (a *Assembler) zeroWindow(off uint64) {
	clear(a.ring[off : off+uint64(a.frameSize)])
}
