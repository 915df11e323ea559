//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"fmt"

	"github.com/mito-data/radar.capture/internal/capture"
)

// ReadPCAPFile is a stub implementation when PCAP support is disabled
// Build with -tags=pcap to enable PCAP file reading
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, handler func(capture.Datagram) error) error {
	return fmt.Errorf("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")
}
