package transcode

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/harplab/stringtrace/logging"
)

// subtitleStyle matches the burn style of the original overlay renderer
const subtitleStyle = "Fontsize=36,BorderStyle=1,Outline=2,Shadow=1,MarginV=50"

// Overlay burns subtitle tracks onto videos and stitches combined artifacts
// using FFmpeg.
type Overlay struct {
	ffmpegPath string
	timeout    time.Duration
}

// NewOverlay creates an overlay renderer using the given ffmpeg binary
func NewOverlay(ffmpegPath string, timeout time.Duration) *Overlay {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Overlay{ffmpegPath: ffmpegPath, timeout: timeout}
}

// Burn renders the subtitle file onto the video, re-encoding video while
// passing the audio stream through unmodified.
func (o *Overlay) Burn(ctx context.Context, videoPath, srtPath, outPath string) error {
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", subtitleFilter(srtPath),
		"-c:a", "copy",
		outPath,
	}
	return o.run(ctx, args, "burn subtitles")
}

// Merge builds the combined artifact: the hand-annotated video supplies the
// video stream, the original upload supplies the audio stream, and the
// subtitle track is burned on top. -shortest ends the output when the
// shorter stream runs out.
func (o *Overlay) Merge(ctx context.Context, handVideoPath, originalVideoPath, srtPath, outPath string) error {
	args := []string{
		"-y",
		"-i", handVideoPath,
		"-i", originalVideoPath,
		"-vf", subtitleFilter(srtPath),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-shortest",
		outPath,
	}
	return o.run(ctx, args, "merge combined video")
}

func (o *Overlay) run(ctx context.Context, args []string, what string) error {
	logger := logging.WithFields(logging.Fields{
		"component": "overlay",
		"operation": what,
	})

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	logger.Debug("Running ffmpeg", logging.Fields{
		"args": strings.Join(args, " "),
	})

	cmd := exec.CommandContext(ctx, o.ffmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s: %w: %s", what, err, tail(string(output), 200))
		}
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// subtitleFilter builds the subtitles video filter, normalizing the path
// separators ffmpeg expects inside filter arguments.
func subtitleFilter(srtPath string) string {
	normalized := filepath.ToSlash(srtPath)
	return fmt.Sprintf("subtitles='%s':force_style='%s'", normalized, subtitleStyle)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
