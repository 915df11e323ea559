// Package network binds the capture pipeline to a real UDP socket. The
// capture card streams raw-mode datagrams at a sustained rate, so the socket
// is tuned for throughput: a large OS receive buffer and short read deadlines
// that keep the reader responsive to shutdown.
package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/mito-data/radar.capture/internal/capture"
	"github.com/mito-data/radar.capture/internal/monitoring"
)

// Config tunes the UDP packet source.
type Config struct {
	// BindAddress is the local address the capture card streams to,
	// e.g. "192.168.33.30:4098".
	BindAddress string

	// ReceiveBufferBytes is the requested SO_RCVBUF size. The OS may clamp
	// it; the effective size is read back and logged.
	ReceiveBufferBytes int

	// ReadTimeout bounds each socket read so the reader can notice
	// shutdown and stalls (default 100ms).
	ReadTimeout time.Duration
}

// Source is a capture.PacketSource backed by a UDP socket.
type Source struct {
	conn        *net.UDPConn
	readTimeout time.Duration
	buf         []byte
	malformed   uint64

	closeOnce sync.Once
	closeErr  error
}

// Open binds the UDP socket and applies the receive buffer tuning.
func Open(cfg Config) (*Source, error) {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.BindAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %q: %w", cfg.BindAddress, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP %q: %w", cfg.BindAddress, err)
	}

	if cfg.ReceiveBufferBytes > 0 {
		if err := conn.SetReadBuffer(cfg.ReceiveBufferBytes); err != nil {
			monitoring.Logf("network: failed to set UDP receive buffer to %d bytes: %v (some OSes clamp buffer sizes)",
				cfg.ReceiveBufferBytes, err)
		} else if effective, err := readBufferSize(conn); err == nil {
			// Informational only: a clamped buffer still captures, it
			// just drops sooner under burst.
			monitoring.Logf("network: UDP receive buffer requested=%d effective=%d", cfg.ReceiveBufferBytes, effective)
		}
	}

	return &Source{
		conn:        conn,
		readTimeout: cfg.ReadTimeout,
		buf:         make([]byte, 65536),
	}, nil
}

// readBufferSize reads back the effective SO_RCVBUF. Linux reports double
// the usable size because it accounts for bookkeeping overhead.
func readBufferSize(conn *net.UDPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var size int
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		size, sockErr = syscall.GetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_RCVBUF)
	}); err != nil {
		return 0, err
	}
	return size, sockErr
}

// LocalAddr returns the bound address, useful when binding to port 0.
func (s *Source) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Next reads one datagram. Deadline expiry maps to capture.ErrTimeout so the
// session can distinguish silence from socket failure. A packet that does not
// carry a valid raw-mode header is counted and skipped, never a terminal
// error: one stray sender on the capture port must not abort a session.
func (s *Source) Next() (capture.Datagram, error) {
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return capture.Datagram{}, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, _, err := s.conn.ReadFromUDP(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return capture.Datagram{}, capture.ErrTimeout
			}
			return capture.Datagram{}, err
		}

		d, err := capture.ParseDatagram(s.buf[:n])
		if err != nil {
			s.malformed++
			monitoring.Logf("network: dropping malformed datagram (%d bytes, %d so far): %v", n, s.malformed, err)
			continue
		}
		return d, nil
	}
}

// Malformed returns how many packets were dropped for lacking a valid
// raw-mode header.
func (s *Source) Malformed() uint64 { return s.malformed }

// Flush drains whatever the OS has queued on the socket, discarding it.
// Reads use a short deadline so an idle socket returns promptly.
func (s *Source) Flush() error {
	drained := 0
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
			return fmt.Errorf("failed to set flush deadline: %w", err)
		}
		_, _, err := s.conn.ReadFromUDP(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if drained > 0 {
					monitoring.Logf("network: flushed %d residual datagrams", drained)
				}
				return nil
			}
			return err
		}
		drained++
	}
}

// Close releases the socket. Safe to call more than once; in-flight reads
// unblock with an error.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
