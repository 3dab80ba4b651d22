package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harplab/stringtrace/logging"
	"github.com/harplab/stringtrace/transcode"
)

// Result is the pipeline output for one recording. CSVPath is always set;
// JSONPath is set on the fast path and VideoPath on the full path.
type Result struct {
	Records   []DetectionRecord
	CSVPath   string
	JSONPath  string
	VideoPath string
}

// Pipeline runs the full onset-to-string detection flow on one recording:
// decode, segment, extract, batch classify, arbitrate, emit. A Pipeline is
// safe to reuse across jobs; each Run owns its waveform for the duration of
// the call only.
type Pipeline struct {
	cfg        Config
	decoder    *transcode.Decoder
	overlay    *transcode.Overlay
	segmenter  *Segmenter
	extractor  *FeatureExtractor
	classifier Classifier
	arbiter    *Arbiter
	emitter    *Emitter
	logger     logging.Logger
}

// NewPipeline assembles a pipeline around the given classifier service
func NewPipeline(cfg Config, classifier Classifier, decoder *transcode.Decoder, overlay *transcode.Overlay) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		decoder:    decoder,
		overlay:    overlay,
		segmenter:  NewSegmenter(),
		extractor:  NewFeatureExtractor(SampleRate),
		classifier: classifier,
		arbiter:    NewArbiter(cfg, NewYinEstimator()),
		emitter:    NewEmitter(cfg.Mode),
		logger: logging.WithFields(logging.Fields{
			"component": "pipeline",
			"mode":      string(cfg.Mode),
		}),
	}
}

// Run executes the pipeline on the video at videoPath, writing artifacts
// under outputDir. fastMode skips the subtitle burn and emits the structured
// JSON instead.
func (p *Pipeline) Run(ctx context.Context, videoPath, outputDir string, fastMode bool) (*Result, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// Model availability is checked before any onset processing
	if err := p.classifier.Ping(ctx); err != nil {
		return nil, err
	}

	audio, err := p.decoder.ExtractAudio(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	onsets, err := p.segmenter.Segment(audio.PCM, audio.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("segment onsets: %w", err)
	}

	p.logger.Info("Onsets segmented", logging.Fields{
		"count":      len(onsets),
		"duration_s": audio.Duration.Seconds(),
	})

	records, err := p.detect(ctx, audio, onsets)
	if err != nil {
		return nil, err
	}

	return p.emit(ctx, videoPath, outputDir, records, fastMode)
}

// detect extracts features for every onset, scores them in one batched
// classifier call, and arbitrates each onset independently.
func (p *Pipeline) detect(ctx context.Context, audio *transcode.AudioData, onsets []float64) ([]DetectionRecord, error) {
	batch := make([]FeaturePair, 0, len(onsets))
	segments := make([][]float64, 0, len(onsets))

	for _, t := range onsets {
		pair, err := p.extractor.Extract(audio.PCM, t)
		if err != nil {
			return nil, err
		}
		batch = append(batch, *pair)
		segments = append(segments, p.fallbackSegment(audio.PCM, t, audio.SampleRate))
	}

	var probs [][]float64
	if len(batch) > 0 {
		var err error
		probs, err = p.classifier.Score(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("score batch: %w", err)
		}
	}

	records := make([]DetectionRecord, len(onsets))
	for i, t := range onsets {
		records[i] = p.arbiter.Decide(t, probs[i], segments[i], audio.SampleRate)
	}
	return records, nil
}

// fallbackSegment is the short raw attack window the pitch fallback wants,
// anchored at the onset with no settling offset.
func (p *Pipeline) fallbackSegment(samples []float64, onsetTime float64, sampleRate int) []float64 {
	start := int(onsetTime * float64(sampleRate))
	end := int((onsetTime + FallbackWindowSec) * float64(sampleRate))
	if start < 0 {
		start = 0
	}
	if end > len(samples) {
		end = len(samples)
	}
	if start >= end {
		return []float64{}
	}
	return samples[start:end]
}

func (p *Pipeline) emit(ctx context.Context, videoPath, outputDir string, records []DetectionRecord, fastMode bool) (*Result, error) {
	result := &Result{Records: records}

	csvName := "predictions_default.csv"
	if p.cfg.Mode == ModeHybrid {
		csvName = "predictions_hybrid.csv"
	}
	result.CSVPath = filepath.Join(outputDir, csvName)
	if err := p.emitter.WriteCSV(result.CSVPath, records); err != nil {
		return nil, err
	}

	if fastMode {
		result.JSONPath = filepath.Join(outputDir, "audio_detections.json")
		if err := p.emitter.WriteJSON(result.JSONPath, records); err != nil {
			return nil, err
		}
		return result, nil
	}

	srtPath := filepath.Join(outputDir, "overlay.srt")
	if err := p.emitter.WriteSRT(srtPath, records); err != nil {
		return nil, err
	}

	result.VideoPath = filepath.Join(outputDir, "video_labeled.mp4")
	if err := p.overlay.Burn(ctx, videoPath, srtPath, result.VideoPath); err != nil {
		return nil, err
	}

	p.logger.Info("Pipeline complete", logging.Fields{
		"records": len(records),
		"video":   result.VideoPath,
	})
	return result, nil
}
