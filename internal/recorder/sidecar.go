package recorder

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// Sidecar is the metadata written next to every finished recording.
// Field order is the serialized key order.
type Sidecar struct {
	StreamName      string  `json:"stream_name"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	TotalFrames     int     `json:"total_frames"`
	AverageFPS      float64 `json:"average_fps"`
	TargetFPS       int     `json:"target_fps"`
	Codec           string  `json:"codec"`
	RecordingPath   string  `json:"recording_path"`
}

// newSidecar computes the recording metadata. Average FPS is rounded to
// two decimals and is zero for a zero-length recording.
func newSidecar(streamName string, start, end time.Time, frames, targetFPS int, codec, recordingPath string) Sidecar {
	duration := end.Sub(start).Seconds()
	var avg float64
	if duration > 0 {
		avg = math.Round(float64(frames)/duration*100) / 100
	}
	return Sidecar{
		StreamName:      streamName,
		StartTime:       start.Format(time.RFC3339),
		EndTime:         end.Format(time.RFC3339),
		DurationSeconds: duration,
		TotalFrames:     frames,
		AverageFPS:      avg,
		TargetFPS:       targetFPS,
		Codec:           codec,
		RecordingPath:   recordingPath,
	}
}

// write serializes the sidecar as indented UTF-8 JSON.
func (s Sidecar) write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling recording metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing recording metadata: %w", err)
	}
	return nil
}
