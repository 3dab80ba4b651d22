package job

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/harplab/stringtrace/logging"
)

// ErrHandUnavailable reports that no hand detector command is configured
var ErrHandUnavailable = errors.New("hand detector not available")

// HandResult is the hand detector's output contract: a detection table and
// an annotated video.
type HandResult struct {
	CSVPath   string
	VideoPath string
	Rows      int
}

// HandDetector runs the external visual hand-detection pass on a video.
// The detector is an opaque collaborator; only its output contract is known
// here.
type HandDetector interface {
	Run(ctx context.Context, videoPath, outputDir, weightsPath string) (*HandResult, error)
}

// CommandHandDetector invokes the detector as a subprocess. It is expected
// to write hand_detections.csv and video_hand.mp4 into the output directory.
type CommandHandDetector struct {
	command string
	logger  logging.Logger
}

// NewCommandHandDetector wraps the configured detector command. An empty
// command yields a detector whose Run always reports ErrHandUnavailable.
func NewCommandHandDetector(command string) *CommandHandDetector {
	return &CommandHandDetector{
		command: command,
		logger:  logging.WithFields(logging.Fields{"component": "hand_detector"}),
	}
}

func (d *CommandHandDetector) Run(ctx context.Context, videoPath, outputDir, weightsPath string) (*HandResult, error) {
	if d.command == "" {
		return nil, ErrHandUnavailable
	}

	args := []string{videoPath, "--output", outputDir}
	if weightsPath != "" {
		args = append(args, "--weights", weightsPath)
	}

	d.logger.Debug("Running hand detector", logging.Fields{
		"video":  videoPath,
		"output": outputDir,
	})

	cmd := exec.CommandContext(ctx, d.command, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("hand detector: %w: %s", err, tail(string(output), 200))
	}

	result := &HandResult{
		CSVPath:   filepath.Join(outputDir, "hand_detections.csv"),
		VideoPath: filepath.Join(outputDir, "video_hand.mp4"),
	}
	if _, err := os.Stat(result.VideoPath); err != nil {
		return nil, fmt.Errorf("hand detector produced no video: %w", err)
	}

	rows, err := countCSVRows(result.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("hand detector csv: %w", err)
	}
	result.Rows = rows

	return result, nil
}

// countCSVRows counts data rows, excluding the header
func countCSVRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if count > 0 {
		count--
	}
	return count, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
