package capture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mito-data/radar.capture/internal/monitoring"
	"github.com/mito-data/radar.capture/internal/timeutil"
)

// PacketSource yields raw capture-card datagrams. Implementations map OS
// read-deadline expiry to ErrTimeout; any other error is terminal for the
// session.
type PacketSource interface {
	// Next blocks until a datagram arrives or the read timeout elapses.
	Next() (Datagram, error)

	// Flush drains and discards whatever the OS has queued so a new
	// session never sees residue from a previous capture.
	Flush() error

	// Close releases the socket. Idempotent; unblocks in-flight reads.
	Close() error
}

// SessionState tracks the capture session lifecycle.
type SessionState int

const (
	StateIdle SessionState = iota
	StateFlushing
	StateCollecting
	StateCompleted
	StateStalledAbort
	StateErrorAbort
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFlushing:
		return "flushing"
	case StateCollecting:
		return "collecting"
	case StateCompleted:
		return "completed"
	case StateStalledAbort:
		return "stalled"
	case StateErrorAbort:
		return "error"
	default:
		return "unknown"
	}
}

// TimestampPolicy selects which wall-clock instant becomes the session's
// authoritative capture-start timestamp.
type TimestampPolicy string

const (
	// TimestampFirstFrame latches the instant the first frame completes.
	// Most representative of actual acquisition start; the default.
	TimestampFirstFrame TimestampPolicy = "first_frame"

	// TimestampSessionStart uses the instant collection began, for
	// bit-for-bit parity with runs recorded by older tooling.
	TimestampSessionStart TimestampPolicy = "session_start"
)

// SessionConfig configures a capture session.
type SessionConfig struct {
	// TargetFrameCount is the number of frames to collect before the
	// session completes.
	TargetFrameCount int

	// StallTimeout aborts the session when no new frame completes within
	// this duration.
	StallTimeout time.Duration

	// HandoffDepth bounds the receiver-to-session datagram channel
	// (default 1024). When full, the oldest buffered datagram is dropped
	// rather than blocking the receiver: stale radar data is worthless.
	HandoffDepth int

	// Timestamp selects the capture-start timestamp policy
	// (default TimestampFirstFrame).
	Timestamp TimestampPolicy

	// Clock defaults to the real clock. Stats defaults to a no-op.
	Clock timeutil.Clock
	Stats Stats
}

// Result is the read-only outcome of a session run, handed to the sink.
type Result struct {
	State               SessionState
	Frames              [][]byte
	FirstFrameWallClock time.Time
	LastFrameWallClock  time.Time
	TargetFrameCount    int

	StaleDatagrams uint64
	DroppedOldest  uint64
}

// Session drives a PacketSource and an Assembler until the target frame
// count is reached, a stall is detected, the context is cancelled, or the
// source fails. All lifecycle state lives in explicit fields so the state
// machine's transitions stay auditable.
type Session struct {
	cfg    SessionConfig
	source PacketSource
	asm    *Assembler

	state        SessionState
	frames       [][]byte
	sessionStart time.Time
	firstFrame   time.Time
	lastFrame    time.Time

	droppedOldest atomic.Uint64
}

// NewSession wires a session. Missing config fields get defaults.
func NewSession(source PacketSource, asm *Assembler, cfg SessionConfig) (*Session, error) {
	if source == nil || asm == nil {
		return nil, errors.New("capture: session needs a packet source and an assembler")
	}
	if cfg.TargetFrameCount <= 0 {
		return nil, errors.New("capture: target frame count must be positive")
	}
	if cfg.StallTimeout <= 0 {
		return nil, errors.New("capture: stall timeout must be positive")
	}
	if cfg.HandoffDepth <= 0 {
		cfg.HandoffDepth = 1024
	}
	if cfg.Timestamp == "" {
		cfg.Timestamp = TimestampFirstFrame
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = noopStats{}
	}
	return &Session{
		cfg:    cfg,
		source: source,
		asm:    asm,
		state:  StateIdle,
	}, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Run executes the capture loop to a terminal state. The returned Result is
// valid in every terminal state; err is non-nil only for ErrorAbort. The
// packet source is closed before Run returns, whatever the exit path.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	s.state = StateFlushing
	if err := s.source.Flush(); err != nil {
		// Residue from a previous run is a hygiene concern, not a
		// reason to refuse the session.
		monitoring.Logf("capture: flush before session failed: %v", err)
	}

	s.state = StateCollecting
	s.sessionStart = s.cfg.Clock.Now()
	s.lastFrame = s.sessionStart
	if s.cfg.Timestamp == TimestampSessionStart {
		s.firstFrame = s.sessionStart
	}

	datagrams := make(chan Datagram, s.cfg.HandoffDepth)
	recvErr := make(chan error, 1)
	recvCtx, stopRecv := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.receive(recvCtx, datagrams, recvErr)
	}()

	var runErr error
	watchdog := s.cfg.Clock.NewTimer(s.cfg.StallTimeout)

loop:
	for {
		select {
		case <-ctx.Done():
			// Operator interrupt: keep what was collected.
			monitoring.Logf("capture: session cancelled with %d/%d frames", len(s.frames), s.cfg.TargetFrameCount)
			s.state = StateStalledAbort
			break loop

		case <-watchdog.C():
			monitoring.Logf("capture: no frame for %v, stalling with %d/%d frames",
				s.cfg.StallTimeout, len(s.frames), s.cfg.TargetFrameCount)
			s.state = StateStalledAbort
			break loop

		case err := <-recvErr:
			s.state = StateErrorAbort
			runErr = err
			break loop

		case d := <-datagrams:
			s.cfg.Stats.AddPacket(len(d.Payload))
			s.cfg.Stats.ObserveSequence(d.SequenceNumber)

			staleBefore := s.asm.StaleDatagrams()
			frames := s.asm.Ingest(d)
			if s.asm.StaleDatagrams() > staleBefore {
				s.cfg.Stats.AddStale()
			}
			if len(frames) == 0 {
				continue
			}

			now := s.cfg.Clock.Now()
			if len(s.frames) == 0 && s.cfg.Timestamp == TimestampFirstFrame {
				// The authoritative capture-start timestamp: set on the
				// first completed frame, never overwritten.
				s.firstFrame = now
			}
			for _, frame := range frames {
				if len(s.frames) >= s.cfg.TargetFrameCount {
					break
				}
				s.frames = append(s.frames, frame)
				s.cfg.Stats.AddFrame()
			}
			s.lastFrame = now
			watchdog.Stop()
			watchdog.Reset(s.cfg.StallTimeout)

			if len(s.frames) >= s.cfg.TargetFrameCount {
				s.state = StateCompleted
				break loop
			}
		}
	}

	watchdog.Stop()
	stopRecv()
	if err := s.source.Close(); err != nil {
		monitoring.Logf("capture: closing packet source: %v", err)
	}
	wg.Wait()

	return &Result{
		State:               s.state,
		Frames:              s.frames,
		FirstFrameWallClock: s.firstFrame,
		LastFrameWallClock:  s.lastFrame,
		TargetFrameCount:    s.cfg.TargetFrameCount,
		StaleDatagrams:      s.asm.StaleDatagrams(),
		DroppedOldest:       s.droppedOldest.Load(),
	}, runErr
}

// receive is the dedicated socket drainer. It runs on its own goroutine so
// OS receive buffering is never exceeded under sustained datagram rate, and
// hands datagrams to the session loop through the bounded channel.
func (s *Session) receive(ctx context.Context, out chan Datagram, errc chan error) {
	for {
		if ctx.Err() != nil {
			return
		}

		d, err := s.source.Next()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				// Recoverable; the session watchdog owns stall decisions.
				continue
			}
			if ctx.Err() != nil {
				// Shutdown path: the source was closed under us.
				return
			}
			select {
			case errc <- err:
			default:
			}
			return
		}

		select {
		case out <- d:
		default:
			// Handoff full: drop the oldest buffered datagram so the
			// receiver never blocks on a slow consumer.
			select {
			case <-out:
				s.droppedOldest.Add(1)
				s.cfg.Stats.AddDropped()
			default:
			}
			select {
			case out <- d:
			default:
			}
		}
	}
}
