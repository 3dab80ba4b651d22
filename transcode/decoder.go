package transcode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/harplab/stringtrace/logging"
)

// ErrDecode reports that ffmpeg could not read the input video
var ErrDecode = errors.New("decode failed")

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64
	SampleRate int
	Duration   time.Duration
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           // Mono output rate
	FFmpegPath       string        // Path to ffmpeg binary
	Timeout          time.Duration // Timeout for ffmpeg operations
}

// DefaultDecoderConfig returns the defaults for the detection pipeline
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 16000,
		FFmpegPath:       "ffmpeg",
		Timeout:          5 * time.Minute,
	}
}

// Decoder extracts mono PCM audio from video files using FFmpeg
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// ExtractAudio decodes the audio track of a video into mono float64 PCM at
// the target sample rate.
func (d *Decoder) ExtractAudio(ctx context.Context, videoPath string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"video":     videoPath,
	})

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	args := []string{
		"-v", "error",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
		"-f", "f64le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	start := time.Now()
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Error(err, "FFmpeg decode failed", logging.Fields{
				"stderr": string(exitErr.Stderr),
			})
			return nil, fmt.Errorf("%w: %s", ErrDecode, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no audio samples decoded", ErrDecode)
	}

	duration := time.Duration(len(samples)) * time.Second / time.Duration(d.config.TargetSampleRate)

	logger.Debug("Audio extracted", logging.Fields{
		"samples":     len(samples),
		"duration_s":  duration.Seconds(),
		"sample_rate": d.config.TargetSampleRate,
		"decode_time": time.Since(start).Seconds(),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Duration:   duration,
	}, nil
}

// bytesToFloat64 converts raw f64le bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	if len(data)%8 != 0 {
		data = data[:len(data)-(len(data)%8)]
	}
	if len(data) == 0 {
		return nil
	}

	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)
	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}
	return samples
}
