// Command replay-server emits synthetic capture-card datagrams over UDP so
// the capture daemon can be exercised without hardware. Payloads carry a
// ramp pattern, so gaps and reordering are visible in the captured bytes.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/mito-data/radar.capture/internal/capture"
)

var (
	target      = flag.String("target", "127.0.0.1:4098", "Address the capture daemon listens on")
	payloadSize = flag.Int("payload", 1456, "Payload bytes per datagram (capture-card raw mode default)")
	interval    = flag.Duration("interval", 500*time.Microsecond, "Delay between datagrams")
	count       = flag.Int("count", 0, "Number of datagrams to send (0 = until interrupted)")
	dropEvery   = flag.Int("drop-every", 0, "Drop every Nth datagram to simulate loss (0 = no loss)")
)

func main() {
	flag.Parse()

	addr, err := net.ResolveUDPAddr("udp", *target)
	if err != nil {
		log.Fatalf("Failed to resolve target %s: %v", *target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *target, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Streaming %d-byte datagrams to %s every %s", *payloadSize, *target, *interval)

	payload := make([]byte, *payloadSize)
	var seq uint32 = 1
	var offset uint64
	sent := 0

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Interrupted after %d datagrams", sent)
			return
		case <-ticker.C:
		}

		for i := range payload {
			payload[i] = byte((offset + uint64(i)) % 251)
		}

		if *dropEvery > 0 && int(seq)%*dropEvery == 0 {
			// Simulated loss: advance the stream without sending.
			seq++
			offset += uint64(len(payload))
			continue
		}

		pkt := capture.AppendHeader(nil, seq, offset)
		pkt = append(pkt, payload...)
		if _, err := conn.Write(pkt); err != nil {
			log.Fatalf("Send failed after %d datagrams: %v", sent, err)
		}

		seq++
		offset += uint64(len(payload))
		sent++
		if *count > 0 && sent >= *count {
			log.Printf("Sent %d datagrams (%d stream bytes)", sent, offset)
			return
		}
	}
}
