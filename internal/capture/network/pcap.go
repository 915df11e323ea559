//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/mito-data/radar.capture/internal/capture"
	"github.com/mito-data/radar.capture/internal/monitoring"
)

// ReadPCAPFile replays capture-card datagrams from a PCAP recording into
// handle, filtered to UDP traffic on udpPort. Malformed datagrams are logged
// and skipped; a handler error stops the replay.
// This function is only available when building with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler func(capture.Datagram) error) error {
	h, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer h.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := h.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("PCAP BPF filter set: %s", filterStr)

	packetSource := gopacket.NewPacketSource(h, h.LinkType())
	packetCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP reader stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP file reading complete: %d packets processed in %v", packetCount, elapsed)
				return nil
			}
			packetCount++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue // Skip non-UDP packets (shouldn't happen with BPF filter)
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok {
				continue
			}
			if len(udp.Payload) == 0 {
				continue
			}

			d, err := capture.ParseDatagram(udp.Payload)
			if err != nil {
				monitoring.Logf("PCAP packet %d is not a capture-card datagram: %v", packetCount, err)
				continue
			}
			if err := handler(d); err != nil {
				return fmt.Errorf("handling PCAP packet %d: %w", packetCount, err)
			}

			if packetCount%10000 == 0 {
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
					packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
			}
		}
	}
}
