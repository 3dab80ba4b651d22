// Package server exposes the upload, status, and download HTTP API around
// the job runner and store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harplab/stringtrace/config"
	"github.com/harplab/stringtrace/detect"
	"github.com/harplab/stringtrace/job"
	"github.com/harplab/stringtrace/logging"
)

// ErrBadUpload reports an upload rejected before any job was created
var ErrBadUpload = errors.New("bad upload")

// videoExtensions lists the container formats accepted for upload
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
}

const maxUploadBytes = 2 << 30

// Server wires the HTTP handlers to the job runner and store
type Server struct {
	cfg    *config.Config
	store  *job.Store
	runner *job.Runner
	logger logging.Logger
}

// New builds the API server
func New(cfg *config.Config, store *job.Store, runner *job.Runner) *Server {
	return &Server{
		cfg:    cfg,
		store:  store,
		runner: runner,
		logger: logging.WithFields(logging.Fields{"component": "server"}),
	}
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/download/csv/{id}", s.handleDownloadCSV)
	mux.HandleFunc("GET /api/download/video/{id}", s.handleDownloadVideo)
	mux.HandleFunc("GET /api/download/json/{id}", s.handleDownloadJSON)
	return mux
}

// ListenAndServe runs the API until the context is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("API listening", logging.Fields{"addr": s.cfg.Server.Listen})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type uploadResponse struct {
	JobID string `json:"job_id"`
}

// handleUpload validates the request, stages the files, and enqueues the
// job. Every validation failure is synchronous; no job record exists for a
// rejected upload.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrBadUpload, err))
		return
	}

	method, err := job.ParseMethod(r.FormValue("method"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrBadUpload, err))
		return
	}

	mode := detect.ModeHybrid
	if v := r.FormValue("mode"); v != "" {
		mode, err = detect.ParseMode(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrBadUpload, err))
			return
		}
	}
	fast := r.FormValue("fast") == "true" || r.FormValue("fast") == "1"

	if method != job.MethodAudio && s.cfg.Hand.Command == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: hand detection is not configured", ErrBadUpload))
		return
	}

	video, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: missing video file", ErrBadUpload))
		return
	}
	defer video.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !videoExtensions[ext] {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unsupported video type %q", ErrBadUpload, ext))
		return
	}

	id := uuid.New().String()
	uploadDir := filepath.Join(s.cfg.Paths.UploadDir, id)
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	videoPath := filepath.Join(uploadDir, "input"+ext)
	if err := saveUpload(video, videoPath); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	weightsPath, err := s.stageWeights(r, uploadDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if method != job.MethodAudio && weightsPath == "" && s.cfg.Hand.DefaultWeights == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: no hand weights uploaded and no default configured", ErrBadUpload))
		return
	}

	opts := job.Options{
		VideoPath:   videoPath,
		OutputDir:   filepath.Join(s.cfg.Paths.OutputDir, id),
		Mode:        mode,
		Fast:        fast,
		WeightsPath: weightsPath,
	}
	if err := s.runner.Enqueue(r.Context(), id, method, opts); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("Upload accepted", logging.Fields{
		"job_id": id,
		"method": string(method),
		"file":   header.Filename,
	})
	writeJSON(w, http.StatusOK, uploadResponse{JobID: id})
}

// stageWeights saves an optional uploaded hand weights file. Absence is
// fine; the runner falls back to the configured default.
func (s *Server) stageWeights(r *http.Request, uploadDir string) (string, error) {
	weights, header, err := r.FormFile("weights")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrBadUpload, err)
	}
	defer weights.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".pt" {
		return "", fmt.Errorf("%w: weights must be a .pt file, got %q", ErrBadUpload, ext)
	}

	path := filepath.Join(uploadDir, "weights.pt")
	if err := saveUpload(weights, path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleDownloadCSV serves a job's detection table. Both-method jobs select
// a sub-result via ?type=audio|hand.
func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(record *job.Record, kind string) (string, string) {
		if record.Audio != nil || record.Hand != nil {
			switch kind {
			case "hand":
				if record.Hand != nil {
					return record.Hand.CSVPath, "hand_detections.csv"
				}
			default:
				if record.Audio != nil {
					return record.Audio.CSVPath, "audio_detections.csv"
				}
			}
			return "", ""
		}
		return record.CSVPath, "detections.csv"
	})
}

// handleDownloadVideo serves an annotated video. Both-method jobs select a
// sub-result via ?type=audio|hand|combined.
func (s *Server) handleDownloadVideo(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(record *job.Record, kind string) (string, string) {
		if record.Audio != nil || record.Hand != nil {
			switch kind {
			case "hand":
				if record.Hand != nil {
					return record.Hand.VideoPath, "video_hand.mp4"
				}
			case "combined":
				if record.Combined != nil {
					return record.Combined.VideoPath, "video_combined.mp4"
				}
			default:
				if record.Audio != nil {
					return record.Audio.VideoPath, "video_labeled.mp4"
				}
			}
			return "", ""
		}
		return record.VideoPath, "video_labeled.mp4"
	})
}

// handleDownloadJSON serves the fast-path structured detections
func (s *Server) handleDownloadJSON(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, func(record *job.Record, kind string) (string, string) {
		return record.JSONPath, "audio_detections.json"
	})
}

// serveArtifact resolves a job artifact path through pick and streams the
// file with a download filename.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, pick func(*job.Record, string) (string, string)) {
	record, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if record.Status != job.StatusDone {
		writeError(w, http.StatusConflict, fmt.Errorf("job is %s", record.Status))
		return
	}

	path, name := pick(record, r.URL.Query().Get("type"))
	if path == "" {
		writeError(w, http.StatusNotFound, errors.New("artifact not available"))
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func saveUpload(src multipart.File, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("stage upload: %w", err)
	}
	return out.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
