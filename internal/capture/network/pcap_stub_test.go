//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"strings"
	"testing"
)

// TestReadPCAPFile_Stub tests the stub implementation returns an error
func TestReadPCAPFile_Stub(t *testing.T) {
	err := ReadPCAPFile(context.Background(), "test.pcap", 4098, nil)
	if err == nil {
		t.Fatal("Expected error from stub implementation")
	}
	if !strings.HasPrefix(err.Error(), "PCAP support not enabled") {
		t.Errorf("Expected error message to start with 'PCAP support not enabled', got '%s'", err.Error())
	}
}
