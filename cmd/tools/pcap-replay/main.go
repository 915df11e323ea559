// Command pcap-replay reassembles radar frames from a recorded capture-card
// stream in a PCAP file and optionally writes the concatenated raw bytes out
// as an adc_data-style .bin. Build with -tags=pcap to enable PCAP reading;
// without the tag the command reports that support is disabled.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mito-data/radar.capture/internal/capture"
	"github.com/mito-data/radar.capture/internal/capture/network"
)

var (
	pcapFile  = flag.String("pcap", "", "Path to the PCAP recording")
	udpPort   = flag.Int("udp-port", 4098, "UDP port the capture card streamed to")
	frameSize = flag.Int("frame-size", 65536, "Frame size in bytes")
	outFile   = flag.String("out", "", "Write the reassembled raw bytes to this file")
)

// collector feeds replayed datagrams through an assembler and keeps the
// emitted frames.
type collector struct {
	asm       *capture.Assembler
	frames    [][]byte
	datagrams int
	bytes     int64
}

func (c *collector) handle(d capture.Datagram) error {
	c.datagrams++
	c.bytes += int64(len(d.Payload))
	c.frames = append(c.frames, c.asm.Ingest(d)...)
	return nil
}

func (c *collector) raw() []byte {
	var out []byte
	for _, f := range c.frames {
		out = append(out, f...)
	}
	return out
}

func main() {
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("a -pcap recording is required")
	}

	asm, err := capture.NewAssembler(*frameSize)
	if err != nil {
		log.Fatalf("Invalid frame size: %v", err)
	}
	col := &collector{asm: asm}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := network.ReadPCAPFile(ctx, *pcapFile, *udpPort, col.handle); err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	log.Printf("Replayed %d datagrams (%d payload bytes) into %d frames, %d stale",
		col.datagrams, col.bytes, len(col.frames), asm.StaleDatagrams())

	if *outFile != "" {
		raw := col.raw()
		if err := os.WriteFile(*outFile, raw, 0o644); err != nil {
			log.Fatalf("Writing %s: %v", *outFile, err)
		}
		log.Printf("Wrote %d bytes to %s", len(raw), *outFile)
	}
}
