package detect

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Emitter writes the per-onset detection records into their external shapes:
// a CSV table always, plus either the fast-path JSON or the subtitle overlay.
type Emitter struct {
	mode Mode
}

// NewEmitter creates an emitter for the given mode
func NewEmitter(mode Mode) *Emitter {
	return &Emitter{mode: mode}
}

// fastDetection is one (onset, active string) pair in the fast-path output
type fastDetection struct {
	T          float64         `json:"t"`
	String     int             `json:"string"`
	Detections []fastConfident `json:"detections"`
}

type fastConfident struct {
	Cls  string  `json:"cls"`
	Conf float64 `json:"conf"`
}

// WriteCSV writes one row per onset. A job with zero onsets still gets the
// header row.
func (e *Emitter) WriteCSV(path string, records []DetectionRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	header := []string{"time_sec", "predicted_strings", "top1", "top1_prob"}
	for i := 1; i <= NumStrings; i++ {
		header = append(header, fmt.Sprintf("prob_S%d", i))
	}
	for i := 1; i <= NumStrings; i++ {
		header = append(header, fmt.Sprintf("pred_S%d", i))
	}
	if e.mode == ModeHybrid {
		header = append(header, "used")
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			formatFloat(rec.Time),
			joinStrings(rec.Active),
			strconv.Itoa(rec.Top1),
			formatFloat(rec.Top1Prob),
		}
		for _, p := range rec.Probs {
			row = append(row, formatFloat(p))
		}
		for _, d := range rec.Decisions {
			row = append(row, strconv.Itoa(d))
		}
		if e.mode == ModeHybrid {
			row = append(row, string(rec.Source))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// WriteJSON writes the fast-path detection array: one entry per active string
// per onset, entries from the same onset sharing the same t. Zero detections
// yield an empty array, not null.
func (e *Emitter) WriteJSON(path string, records []DetectionRecord) error {
	out := make([]fastDetection, 0)
	for _, rec := range records {
		for _, s := range rec.Active {
			out = append(out, fastDetection{
				T:      rec.Time,
				String: s,
				Detections: []fastConfident{
					{Cls: "audio_onset", Conf: rec.Probs[s-1]},
				},
			})
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteSRT writes one numbered subtitle block per onset, each flashing for
// FlashSec starting slightly before the onset.
func (e *Emitter) WriteSRT(path string, records []DetectionRecord) error {
	var b strings.Builder
	for i, rec := range records {
		start := rec.Time - SubtitleLeadSec
		if start < 0 {
			start = 0
		}
		end := start + FlashSec

		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(srtTime(start))
		b.WriteString(" --> ")
		b.WriteString(srtTime(end))
		b.WriteString("\n")
		b.WriteString(e.subtitleText(rec))
		b.WriteString("\n\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

func (e *Emitter) subtitleText(rec DetectionRecord) string {
	strs := joinStrings(rec.Active)
	if strs == "" {
		strs = "None"
	}
	if e.mode == ModeHybrid {
		return fmt.Sprintf("%s → %s", strings.ToUpper(string(rec.Source)), strs)
	}
	return fmt.Sprintf("t=%.2fs → %s", rec.Time, strs)
}

// srtTime formats seconds as HH:MM:SS,mmm
func srtTime(t float64) string {
	totalMillis := int(t*1000 + 0.5)
	h := totalMillis / 3600000
	m := (totalMillis % 3600000) / 60000
	s := (totalMillis % 60000) / 1000
	ms := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

func joinStrings(active []int) string {
	parts := make([]string, len(active))
	for i, s := range active {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
