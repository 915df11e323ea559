// Package dataset materializes capture receipts on disk using the MITO
// collection layout. Paths encode the experiment coordinates so downstream
// processing can locate a capture without a database:
//
//	{root}/{objectID}_{objectName}/robot_collected/{x}_{y}_{z}/exp{N}/{los|nlos}/
//	    unprocessed/radars/metadata.json
//	    unprocessed/radars/radar_data/adc_data{timestamp}.bin
//
// The .bin artifact is the raw byte stream exactly as captured; the sidecar
// metadata.json carries the acquisition parameters needed to reinterpret it.
package dataset

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mito-data/radar.capture/internal/capture"
	"github.com/mito-data/radar.capture/internal/fsutil"
	"github.com/mito-data/radar.capture/internal/monitoring"
)

// Experiment identifies one collection point in the dataset.
type Experiment struct {
	ObjectID   string `json:"object_id"`
	ObjectName string `json:"object_name"`

	// Robot end-effector position, in the collection rig's coordinates.
	// Kept as strings since they name folders, not computations.
	X string `json:"x"`
	Y string `json:"y"`
	Z string `json:"z"`

	Number      int  `json:"experiment_number"`
	LineOfSight bool `json:"line_of_sight"`
}

// Validate rejects experiments that cannot name a dataset folder.
func (e Experiment) Validate() error {
	if e.ObjectID == "" || e.ObjectName == "" {
		return fmt.Errorf("dataset: experiment needs an object id and name")
	}
	if e.X == "" || e.Y == "" || e.Z == "" {
		return fmt.Errorf("dataset: experiment needs a full x/y/z position")
	}
	if e.Number < 0 {
		return fmt.Errorf("dataset: experiment number %d is negative", e.Number)
	}
	return nil
}

// Layout resolves and writes dataset paths under a fixed root.
type Layout struct {
	root string
	fs   fsutil.FileSystem
}

// NewLayout creates a layout rooted at root. A nil filesystem uses the OS.
func NewLayout(root string, fs fsutil.FileSystem) (*Layout, error) {
	if root == "" {
		return nil, fmt.Errorf("dataset: root directory is required")
	}
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &Layout{root: root, fs: fs}, nil
}

// RadarDir resolves the directory holding one experiment's radar captures.
func (l *Layout) RadarDir(exp Experiment) string {
	sight := "los"
	if !exp.LineOfSight {
		sight = "nlos"
	}
	return filepath.Join(
		l.root,
		fmt.Sprintf("%s_%s", exp.ObjectID, exp.ObjectName),
		"robot_collected",
		fmt.Sprintf("%s_%s_%s", exp.X, exp.Y, exp.Z),
		fmt.Sprintf("exp%d", exp.Number),
		sight,
		"unprocessed", "radars",
	)
}

// BinPath resolves the raw artifact path for a receipt. The compact capture
// timestamp keeps multiple captures of one experiment from colliding.
func (l *Layout) BinPath(exp Experiment, receipt *capture.Receipt) string {
	name := fmt.Sprintf("adc_data%s.bin", receipt.Metadata().TimestampCompact)
	return filepath.Join(l.RadarDir(exp), "radar_data", name)
}

// MetadataPath resolves the sidecar path, one level above radar_data.
func (l *Layout) MetadataPath(exp Experiment) string {
	return filepath.Join(l.RadarDir(exp), "metadata.json")
}

// Write persists a receipt: the raw .bin stream plus the metadata sidecar.
// Returns the .bin path for cataloguing.
func (l *Layout) Write(exp Experiment, receipt *capture.Receipt) (string, error) {
	if err := exp.Validate(); err != nil {
		return "", err
	}
	if receipt == nil || len(receipt.RawBytes) == 0 {
		return "", fmt.Errorf("dataset: refusing to write an empty capture")
	}

	binPath := l.BinPath(exp, receipt)
	if err := l.fs.MkdirAll(filepath.Dir(binPath), 0o755); err != nil {
		return "", fmt.Errorf("dataset: creating %s: %w", filepath.Dir(binPath), err)
	}
	if err := l.fs.WriteFile(binPath, receipt.RawBytes, 0o644); err != nil {
		return "", fmt.Errorf("dataset: writing %s: %w", binPath, err)
	}

	meta, err := json.MarshalIndent(receipt.Metadata(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("dataset: encoding metadata: %w", err)
	}
	metaPath := l.MetadataPath(exp)
	if err := l.fs.WriteFile(metaPath, meta, 0o644); err != nil {
		return "", fmt.Errorf("dataset: writing %s: %w", metaPath, err)
	}

	monitoring.Logf("dataset: wrote %d frames (%d bytes) to %s", receipt.FrameCount, len(receipt.RawBytes), binPath)
	return binPath, nil
}
