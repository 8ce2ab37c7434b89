// Package media inspects local video files before upload: duration,
// audio track presence, and file size.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Info is the subset of container metadata the job pipeline needs.
type Info struct {
	DurationSeconds float64
	HasAudio        bool
	SizeBytes       int64
}

// Prober extracts Info from a local file path.
type Prober interface {
	Probe(ctx context.Context, path string) (*Info, error)
}

// ErrUnreadable is returned when the file exists but cannot be parsed
// as a media container.
var ErrUnreadable = errors.New("vidscribe: unreadable media file")

// FFProbe shells out to ffprobe for container inspection.
type FFProbe struct {
	// Binary overrides the ffprobe executable path.
	Binary string
}

var _ Prober = (*FFProbe)(nil)

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

func (f *FFProbe) Probe(ctx context.Context, path string) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("vidscribe: stat media file: %w", err)
	}

	bin := f.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: missing duration", ErrUnreadable)
	}

	info := &Info{
		DurationSeconds: duration,
		SizeBytes:       stat.Size(),
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "audio" {
			info.HasAudio = true
			break
		}
	}
	return info, nil
}

// StaticProber returns fixed Info for tests.
type StaticProber struct {
	Info *Info
	Err  error
}

var _ Prober = (*StaticProber)(nil)

func (p *StaticProber) Probe(ctx context.Context, path string) (*Info, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Info, nil
}
