package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// Prober is a playback probe: it returns nil once the file can play through.
// It must return when ctx is cancelled.
type Prober interface {
	Probe(ctx context.Context, path string) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, path string) error

func (f ProberFunc) Probe(ctx context.Context, path string) error { return f(ctx, path) }

// FFprobe probes with the ffprobe binary. Path "" means "ffprobe" from PATH.
type FFprobe struct {
	Path string
}

// ffprobeOutput is a minimal model for ffprobe JSON output.
type ffprobeOutput struct {
	Streams []map[string]any `json:"streams"`
	Format  map[string]any   `json:"format"`
}

func (p FFprobe) Probe(ctx context.Context, path string) error {
	bin := p.Path
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffprobe: %w", err)
	}
	var data ffprobeOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return fmt.Errorf("parse ffprobe output: %w", err)
	}
	return checkPlayable(data)
}

// checkPlayable wants one video stream with a codec and a positive container duration.
func checkPlayable(data ffprobeOutput) error {
	var codec string
	for _, s := range data.Streams {
		if ct, _ := s["codec_type"].(string); ct == "video" {
			codec, _ = s["codec_name"].(string)
			break
		}
	}
	if codec == "" {
		return errors.New("no decodable video stream")
	}
	ds, _ := data.Format["duration"].(string)
	d, err := strconv.ParseFloat(ds, 64)
	if err != nil || d <= 0 {
		return fmt.Errorf("no playable duration (codec %s)", codec)
	}
	return nil
}
