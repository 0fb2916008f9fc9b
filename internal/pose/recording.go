package pose

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MaxRecordingSize bounds recording files read from disk. At ~3KB per frame
// this is over an hour of 30fps video.
const MaxRecordingSize = 512 << 20

// Recording is a landmark sequence extracted from a video, the input of
// batch analysis.
type Recording struct {
	FPS float64 `json:"fps"`
	// FrameCount is the length of the source video in frames, when it
	// differs from the number of frames recorded.
	FrameCount int     `json:"frame_count,omitempty"`
	Frames     []Frame `json:"frames"`
}

// ReadRecording decodes one JSON recording from r.
func ReadRecording(r io.Reader) (Recording, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var rec Recording
	if err := dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Recording{}, errors.New("recording is empty")
		}
		return Recording{}, fmt.Errorf("failed to decode recording: %w", err)
	}
	if len(rec.Frames) == 0 {
		return Recording{}, errors.New("recording has no frames")
	}
	return rec, nil
}

// LoadRecording reads a .json recording file.
func LoadRecording(path string) (Recording, error) {
	cleanPath := filepath.Clean(path)
	if filepath.Ext(cleanPath) != ".json" {
		return Recording{}, fmt.Errorf("recording must be a .json file, got %q", path)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return Recording{}, fmt.Errorf("failed to stat recording: %w", err)
	}
	if info.Size() > MaxRecordingSize {
		return Recording{}, fmt.Errorf("recording too large: %d bytes (max %d)", info.Size(), MaxRecordingSize)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return Recording{}, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()
	return ReadRecording(f)
}
