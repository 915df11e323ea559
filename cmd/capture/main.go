// Command capture records raw radar frames streamed by the capture card
// over UDP, writes them into the dataset tree, and indexes the run in the
// capture catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mito-data/radar.capture/internal/capture"
	"github.com/mito-data/radar.capture/internal/capture/network"
	"github.com/mito-data/radar.capture/internal/catalog"
	"github.com/mito-data/radar.capture/internal/config"
	"github.com/mito-data/radar.capture/internal/dataset"
)

var (
	configFile  = flag.String("config", "", "Path to JSON config file (flags override file values)")
	bindAddr    = flag.String("bind", "", "UDP bind address the capture card streams to")
	frames      = flag.Int("frames", 0, "Number of frames to collect")
	stallSecs   = flag.Int("stall", 0, "Abort when no frame completes for this many seconds")
	rcvBuf      = flag.Int("rcvbuf", 0, "UDP receive buffer size in bytes")
	datasetRoot = flag.String("dataset-root", "", "Root directory of the dataset tree")
	catalogPath = flag.String("catalog", "", "Path to the SQLite capture catalog")
	objectID    = flag.String("object-id", "", "Object identifier for the dataset path")
	objectName  = flag.String("object-name", "", "Object name for the dataset path")
	posX        = flag.String("x", "", "Collection position x")
	posY        = flag.String("y", "", "Collection position y")
	posZ        = flag.String("z", "", "Collection position z")
	expNumber   = flag.Int("exp", 0, "Experiment number")
	nlos        = flag.Bool("nlos", false, "Mark the capture as non-line-of-sight")
	logInterval = flag.Int("log-interval", 2, "Statistics logging interval in seconds")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, receipt, err := runCapture(ctx, cfg)
	if err != nil {
		log.Fatalf("Capture failed: %v", err)
	}
	if receipt == nil {
		// Stalled with nothing collected; there is no artifact to keep.
		log.Printf("Capture produced no frames (state %s)", result.State)
		os.Exit(1)
	}

	log.Printf("Capture %s finished: state=%s frames=%d/%d bytes=%d stale=%d dropped=%d",
		receipt.SessionID, result.State, receipt.FrameCount, receipt.TargetFrameCount,
		len(receipt.RawBytes), result.StaleDatagrams, result.DroppedOldest)
}

// loadConfig merges the config file (when given) with explicit flag
// overrides, then validates the result.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Only flags the operator actually set override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bind":
			cfg.BindAddress = *bindAddr
		case "frames":
			cfg.TargetFrameCount = *frames
		case "stall":
			cfg.StallTimeoutSeconds = *stallSecs
		case "rcvbuf":
			cfg.ReceiveBufferBytes = *rcvBuf
		case "dataset-root":
			cfg.DatasetRoot = *datasetRoot
		case "catalog":
			cfg.CatalogPath = *catalogPath
		case "object-id":
			cfg.Experiment.ObjectID = *objectID
		case "object-name":
			cfg.Experiment.ObjectName = *objectName
		case "x":
			cfg.Experiment.X = *posX
		case "y":
			cfg.Experiment.Y = *posY
		case "z":
			cfg.Experiment.Z = *posZ
		case "exp":
			cfg.Experiment.Number = *expNumber
		case "nlos":
			cfg.Experiment.LineOfSight = !*nlos
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Experiment.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCapture(ctx context.Context, cfg *config.Config) (*capture.Result, *capture.Receipt, error) {
	cat, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	defer cat.Close()

	layout, err := dataset.NewLayout(cfg.DatasetRoot, nil)
	if err != nil {
		return nil, nil, err
	}

	source, err := network.Open(network.Config{
		BindAddress:        cfg.BindAddress,
		ReceiveBufferBytes: cfg.ReceiveBufferBytes,
		ReadTimeout:        cfg.GetReadTimeout(),
	})
	if err != nil {
		return nil, nil, err
	}

	asm, err := capture.NewAssembler(cfg.Radar.FrameSize())
	if err != nil {
		return nil, nil, err
	}

	stats := capture.NewPacketStats()
	sess, err := capture.NewSession(source, asm, capture.SessionConfig{
		TargetFrameCount: cfg.TargetFrameCount,
		StallTimeout:     cfg.GetStallTimeout(),
		HandoffDepth:     cfg.HandoffDepth,
		Timestamp:        capture.TimestampPolicy(cfg.TimestampPolicy),
		Stats:            stats,
	})
	if err != nil {
		return nil, nil, err
	}

	// Periodic statistics logging while the session runs.
	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go func() {
		ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-statsCtx.Done():
				return
			case <-ticker.C:
				stats.LogStats()
			}
		}
	}()

	log.Printf("Collecting %d frames of %d bytes from %s (stall timeout %s)",
		cfg.TargetFrameCount, cfg.Radar.FrameSize(), cfg.BindAddress, cfg.GetStallTimeout())

	result, err := sess.Run(ctx)
	stopStats()
	stats.LogStats()
	if err != nil {
		return result, nil, err
	}

	receipt, err := capture.BuildReceipt(result, cfg.Radar)
	if err != nil {
		// Zero frames collected; the caller reports and exits non-zero.
		return result, nil, nil
	}

	binPath, err := layout.Write(cfg.Experiment, receipt)
	if err != nil {
		return result, receipt, fmt.Errorf("persisting capture: %w", err)
	}
	if err := cat.RecordReceipt(receipt, binPath); err != nil {
		return result, receipt, err
	}
	return result, receipt, nil
}
