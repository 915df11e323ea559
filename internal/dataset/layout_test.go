package dataset

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mito-data/radar.capture/internal/capture"
	"github.com/mito-data/radar.capture/internal/fsutil"
)

func testExperiment() Experiment {
	return Experiment{
		ObjectID:    "041",
		ObjectName:  "mug",
		X:           "0.30",
		Y:           "-0.10",
		Z:           "0.25",
		Number:      2,
		LineOfSight: true,
	}
}

func testReceipt() *capture.Receipt {
	return &capture.Receipt{
		SessionID:           "test-session",
		FrameCount:          4,
		TargetFrameCount:    4,
		FirstFrameWallClock: time.Date(2024, 3, 15, 12, 30, 45, 0, time.UTC),
		RawBytes:            []byte{1, 2, 3, 4, 5, 6, 7, 8},
		Params:              capture.RadarParams{NumSamples: 1, NumChirps: 1, NumRx: 2, NumTx: 1},
	}
}

func TestLayoutResolvesCollectionConvention(t *testing.T) {
	l, err := NewLayout("/data/mito", fsutil.NewMemoryFileSystem())
	if err != nil {
		t.Fatalf("NewLayout failed: %v", err)
	}

	got := l.BinPath(testExperiment(), testReceipt())
	want := filepath.Join("/data/mito", "041_mug", "robot_collected", "0.30_-0.10_0.25",
		"exp2", "los", "unprocessed", "radars", "radar_data", "adc_data20240315123045.bin")
	if got != want {
		t.Errorf("BinPath = %q, want %q", got, want)
	}

	// Non-line-of-sight captures land under nlos.
	exp := testExperiment()
	exp.LineOfSight = false
	if dir := l.RadarDir(exp); filepath.Base(filepath.Dir(filepath.Dir(dir))) != "nlos" {
		t.Errorf("RadarDir for nlos experiment = %q", dir)
	}

	meta := l.MetadataPath(testExperiment())
	if filepath.Base(meta) != "metadata.json" || filepath.Base(filepath.Dir(meta)) != "radars" {
		t.Errorf("MetadataPath = %q, want metadata.json beside radar_data", meta)
	}
}

func TestLayoutWritePersistsArtifactAndSidecar(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	l, err := NewLayout("/data/mito", fs)
	if err != nil {
		t.Fatalf("NewLayout failed: %v", err)
	}

	receipt := testReceipt()
	binPath, err := l.Write(testExperiment(), receipt)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	raw, err := fs.ReadFile(binPath)
	if err != nil {
		t.Fatalf("reading artifact back: %v", err)
	}
	if string(raw) != string(receipt.RawBytes) {
		t.Error("artifact bytes do not match the receipt")
	}

	metaRaw, err := fs.ReadFile(l.MetadataPath(testExperiment()))
	if err != nil {
		t.Fatalf("reading sidecar back: %v", err)
	}
	var meta capture.Metadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		t.Fatalf("sidecar is not valid JSON: %v", err)
	}
	if meta.NumFrames != 4 || meta.TimestampCompact != "20240315123045" {
		t.Errorf("sidecar metadata = %+v", meta)
	}
}

func TestLayoutWriteRejectsBadInput(t *testing.T) {
	l, err := NewLayout("/data/mito", fsutil.NewMemoryFileSystem())
	if err != nil {
		t.Fatalf("NewLayout failed: %v", err)
	}

	if _, err := l.Write(Experiment{}, testReceipt()); err == nil {
		t.Error("incomplete experiment should not write")
	}
	if _, err := l.Write(testExperiment(), nil); err == nil {
		t.Error("nil receipt should not write")
	}
	if _, err := l.Write(testExperiment(), &capture.Receipt{}); err == nil {
		t.Error("empty receipt should not write")
	}
}
