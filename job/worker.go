package job

import (
	"context"
	"path/filepath"

	"github.com/harplab/stringtrace/config"
	"github.com/harplab/stringtrace/detect"
	"github.com/harplab/stringtrace/logging"
	"github.com/harplab/stringtrace/transcode"
)

// stage tags the progress of a both-method job. The stages run strictly in
// order; an error at any stage leaves the sub-results of earlier stages in
// the record.
type stage int

const (
	stageAudio stage = iota
	stageHand
	stageMerge
)

// Options carries the per-job request parameters
type Options struct {
	VideoPath   string
	OutputDir   string
	Mode        detect.Mode
	Fast        bool   // Emit structured JSON instead of burning a video
	WeightsPath string // Hand detector weights; empty uses the configured default
}

// Runner executes jobs against the store. Each job runs on its own
// goroutine; stages within a job run sequentially and no job is cancellable
// once started.
type Runner struct {
	cfg        *config.Config
	store      *Store
	classifier detect.Classifier
	hand       HandDetector
	decoder    *transcode.Decoder
	overlay    *transcode.Overlay
	logger     logging.Logger

	// Stage implementations, swappable in tests
	audioFn func(ctx context.Context, opts Options, fast bool) (*detect.Result, error)
	handFn  func(ctx context.Context, opts Options) (*HandResult, error)
	mergeFn func(ctx context.Context, handVideo, originalVideo, srtPath, outPath string) error
}

// NewRunner assembles a runner over the shared collaborators
func NewRunner(cfg *config.Config, store *Store, classifier detect.Classifier, hand HandDetector) *Runner {
	decoder := transcode.NewDecoder(&transcode.DecoderConfig{
		TargetSampleRate: detect.SampleRate,
		FFmpegPath:       cfg.FFmpeg.Binary,
		Timeout:          cfg.FFmpegTimeout(),
	})
	r := &Runner{
		cfg:        cfg,
		store:      store,
		classifier: classifier,
		hand:       hand,
		decoder:    decoder,
		overlay:    transcode.NewOverlay(cfg.FFmpeg.Binary, cfg.FFmpegTimeout()),
		logger:     logging.WithFields(logging.Fields{"component": "job_runner"}),
	}
	r.audioFn = r.audioPass
	r.handFn = r.handPass
	r.mergeFn = r.overlay.Merge
	return r
}

// Enqueue records the job as queued and starts its worker goroutine
func (r *Runner) Enqueue(ctx context.Context, id string, method Method, opts Options) error {
	if err := r.store.Put(ctx, id, queuedRecord()); err != nil {
		return err
	}
	go r.run(context.WithoutCancel(ctx), id, method, opts)
	return nil
}

func (r *Runner) run(ctx context.Context, id string, method Method, opts Options) {
	logger := r.logger.WithFields(logging.Fields{
		"job_id": id,
		"method": string(method),
	})
	logger.Info("Job started", logging.Fields{"mode": string(opts.Mode)})

	var err error
	switch method {
	case MethodAudio:
		err = r.runAudio(ctx, id, opts)
	case MethodHand:
		err = r.runHand(ctx, id, opts)
	case MethodBoth:
		err = r.runBoth(ctx, id, opts)
	}

	if err != nil {
		logger.Error(err, "Job failed")
		r.put(ctx, id, errorRecord(err))
		return
	}
	logger.Info("Job finished")
}

// runAudio drives the detection pipeline and reports a flat result
func (r *Runner) runAudio(ctx context.Context, id string, opts Options) error {
	r.put(ctx, id, runningRecord("Processing (audio)..."))

	result, err := r.audioFn(ctx, opts, opts.Fast)
	if err != nil {
		return err
	}

	record := Record{
		Status:    StatusDone,
		CSVPath:   result.CSVPath,
		VideoPath: result.VideoPath,
		JSONPath:  result.JSONPath,
		Rows:      intPtr(len(result.Records)),
	}
	return r.store.Put(ctx, id, record)
}

// runHand drives the external hand detector and reports a flat result
func (r *Runner) runHand(ctx context.Context, id string, opts Options) error {
	r.put(ctx, id, runningRecord("Processing (hand)..."))

	result, err := r.handFn(ctx, opts)
	if err != nil {
		return err
	}

	record := Record{
		Status:    StatusDone,
		CSVPath:   result.CSVPath,
		VideoPath: result.VideoPath,
		Rows:      intPtr(result.Rows),
	}
	return r.store.Put(ctx, id, record)
}

// runBoth walks the audio, hand, and merge stages in order. Failures in the
// hand or merge stage do not fail the job: the record keeps every completed
// sub-result and carries the failure as an annotation on the stage that
// broke.
func (r *Runner) runBoth(ctx context.Context, id string, opts Options) error {
	var record Record

	for s := stageAudio; s <= stageMerge; s++ {
		switch s {
		case stageAudio:
			record = runningRecord("Processing (audio)...")
			r.put(ctx, id, record)

			result, err := r.audioFn(ctx, opts, false)
			if err != nil {
				return err
			}
			record.Audio = &SubResult{
				CSVPath:   result.CSVPath,
				VideoPath: result.VideoPath,
				Rows:      len(result.Records),
			}

		case stageHand:
			record.Message = "Processing (hand)..."
			r.put(ctx, id, record)

			result, err := r.handFn(ctx, opts)
			if err != nil {
				record.Status = StatusDone
				record.Message = ""
				record.HandError = err.Error()
				return r.store.Put(ctx, id, record)
			}
			record.Hand = &SubResult{
				CSVPath:   result.CSVPath,
				VideoPath: result.VideoPath,
				Rows:      result.Rows,
			}

		case stageMerge:
			record.Message = "Combining results..."
			r.put(ctx, id, record)

			combinedPath := filepath.Join(opts.OutputDir, "video_combined.mp4")
			srtPath := filepath.Join(opts.OutputDir, "overlay.srt")
			err := r.mergeFn(ctx, record.Hand.VideoPath, opts.VideoPath, srtPath, combinedPath)
			if err != nil {
				record.Status = StatusDone
				record.Message = ""
				record.CombinedError = err.Error()
				return r.store.Put(ctx, id, record)
			}
			record.Combined = &SubResult{VideoPath: combinedPath}
		}
	}

	record.Status = StatusDone
	record.Message = ""
	return r.store.Put(ctx, id, record)
}

func (r *Runner) audioPass(ctx context.Context, opts Options, fast bool) (*detect.Result, error) {
	cfg := detect.Config{
		Mode:              opts.Mode,
		Threshold:         r.cfg.Detect.Threshold,
		String12Threshold: r.cfg.Detect.String12Threshold,
		ConfidenceFloor:   r.cfg.Detect.ConfidenceFloor,
	}
	pipeline := detect.NewPipeline(cfg, r.classifier, r.decoder, r.overlay)
	return pipeline.Run(ctx, opts.VideoPath, opts.OutputDir, fast)
}

func (r *Runner) handPass(ctx context.Context, opts Options) (*HandResult, error) {
	weights := opts.WeightsPath
	if weights == "" {
		weights = r.cfg.Hand.DefaultWeights
	}
	return r.hand.Run(ctx, opts.VideoPath, opts.OutputDir, weights)
}

// put is a best-effort status transition; losing a running-phase update is
// preferable to killing the job over it.
func (r *Runner) put(ctx context.Context, id string, record Record) {
	if err := r.store.Put(ctx, id, record); err != nil {
		r.logger.Error(err, "Failed to persist job record", logging.Fields{"job_id": id})
	}
}
