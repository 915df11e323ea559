package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RadarParams declares the acquisition shape of the stream being captured.
// Downstream tooling reconstructs the frame layout from these, since the
// binary artifact itself carries no header.
type RadarParams struct {
	NumSamples    int     `json:"num_samples"`
	NumChirps     int     `json:"num_chirps"`
	NumRx         int     `json:"num_rx"`
	NumTx         int     `json:"num_tx"`
	PeriodicityMs float64 `json:"periodicity"`
	SweepTime     float64 `json:"sweep_time"`

	// FrameSizeBytes overrides the derived frame size when non-zero.
	FrameSizeBytes int `json:"frame_size_bytes,omitempty"`
}

// FrameSize returns the byte size of one frame: complex samples are stored
// as a 16-bit I and a 16-bit Q value per sample per receive channel.
func (p RadarParams) FrameSize() int {
	if p.FrameSizeBytes > 0 {
		return p.FrameSizeBytes
	}
	return p.NumSamples * p.NumChirps * p.NumRx * 4
}

// Validate rejects parameter sets that cannot describe a frame.
func (p RadarParams) Validate() error {
	if p.FrameSize() <= 0 {
		return fmt.Errorf("radar params describe a %d-byte frame", p.FrameSize())
	}
	return nil
}

// Receipt is the finalized capture artifact: the ordered raw byte stream
// plus everything persistence needs. Produced exactly once per session and
// immutable afterwards.
type Receipt struct {
	SessionID           string
	FrameCount          int
	TargetFrameCount    int
	FirstFrameWallClock time.Time
	RawBytes            []byte
	Params              RadarParams
	Stalled             bool
}

// Metadata is the JSON sidecar record accompanying the binary artifact.
// timestamp_compact and datetime_strftime are both derived from
// capture_start_time; the instant is authoritative, the formats are
// conveniences for folder naming and humans.
type Metadata struct {
	CaptureStartTime float64 `json:"capture_start_time"`
	TimestampCompact string  `json:"timestamp_compact"`
	DatetimeStrftime string  `json:"datetime_strftime"`
	NumFrames        int     `json:"num_frames"`
	NumSamples       int     `json:"num_samples"`
	NumChirps        int     `json:"num_chirps"`
	NumRx            int     `json:"num_rx"`
	NumTx            int     `json:"num_tx"`
	Periodicity      float64 `json:"periodicity"`
	SweepTime        float64 `json:"sweep_time"`
	TargetFrames     int     `json:"target_frames"`
	FrameCountShort  bool    `json:"frame_count_short"`
}

// BuildReceipt concatenates the session's frames, in capture order, into
// the single artifact handed to the dataset layer. A session that collected
// nothing produces no artifact.
func BuildReceipt(result *Result, params RadarParams) (*Receipt, error) {
	if result == nil || len(result.Frames) == 0 {
		return nil, errors.New("capture: no frames collected, nothing to persist")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	total := 0
	for _, f := range result.Frames {
		total += len(f)
	}

	// Collection order is capture order. This is temporal data; it is
	// never sorted.
	raw := make([]byte, 0, total)
	for _, f := range result.Frames {
		raw = append(raw, f...)
	}

	return &Receipt{
		SessionID:           uuid.NewString(),
		FrameCount:          len(result.Frames),
		TargetFrameCount:    result.TargetFrameCount,
		FirstFrameWallClock: result.FirstFrameWallClock,
		RawBytes:            raw,
		Params:              params,
		Stalled:             result.State != StateCompleted,
	}, nil
}

// Metadata derives the sidecar record from the receipt.
func (r *Receipt) Metadata() Metadata {
	t := r.FirstFrameWallClock
	return Metadata{
		CaptureStartTime: float64(t.UnixNano()) / 1e9,
		TimestampCompact: t.Format("20060102150405"),
		DatetimeStrftime: t.Format("2006-01-02 15:04:05.000000"),
		NumFrames:        r.FrameCount,
		NumSamples:       r.Params.NumSamples,
		NumChirps:        r.Params.NumChirps,
		NumRx:            r.Params.NumRx,
		NumTx:            r.Params.NumTx,
		Periodicity:      r.Params.PeriodicityMs,
		SweepTime:        r.Params.SweepTime,
		TargetFrames:     r.TargetFrameCount,
		FrameCountShort:  r.FrameCount < r.TargetFrameCount,
	}
}
