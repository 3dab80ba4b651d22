package detect

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleRecord(t float64, active []int) DetectionRecord {
	probs := make([]float64, NumStrings)
	decisions := make([]int, NumStrings)
	for _, s := range active {
		probs[s-1] = 0.9
		decisions[s-1] = 1
	}
	top1 := 1
	if len(active) > 0 {
		top1 = active[0]
	}
	return DetectionRecord{
		Time:      t,
		Active:    active,
		Top1:      top1,
		Top1Prob:  probs[top1-1],
		Probs:     probs,
		Decisions: decisions,
		Source:    SourceModel,
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestWriteCSVZeroOnsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := NewEmitter(ModeDefault).WriteCSV(path, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want header only", len(rows))
	}
	// 4 lead columns + 16 probs + 16 decisions
	if len(rows[0]) != 4+2*NumStrings {
		t.Errorf("header has %d columns, want %d", len(rows[0]), 4+2*NumStrings)
	}
	if rows[0][0] != "time_sec" || rows[0][4] != "prob_S1" {
		t.Errorf("unexpected header: %v", rows[0][:5])
	}
}

func TestWriteCSVHybridUsedColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	rec := sampleRecord(1.5, []int{5})
	rec.Source = SourcePitch
	if err := NewEmitter(ModeHybrid).WriteCSV(path, []DetectionRecord{rec}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	header, data := rows[0], rows[1]
	if header[len(header)-1] != "used" {
		t.Errorf("last header column = %q, want used", header[len(header)-1])
	}
	if data[len(data)-1] != "pitch" {
		t.Errorf("used column = %q, want pitch", data[len(data)-1])
	}
	if data[1] != "5" {
		t.Errorf("predicted_strings = %q, want 5", data[1])
	}
}

func TestWriteCSVMultiStringRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	rec := sampleRecord(2.0, []int{3, 7, 12})
	if err := NewEmitter(ModeDefault).WriteCSV(path, []DetectionRecord{rec}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows := readCSV(t, path)
	if rows[1][1] != "3,7,12" {
		t.Errorf("predicted_strings = %q, want 3,7,12", rows[1][1])
	}
}

func TestWriteJSONZeroOnsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := NewEmitter(ModeDefault).WriteJSON(path, nil); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("zero-onset json = %q, want []", data)
	}
}

func TestWriteJSONEntryPerActiveString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	records := []DetectionRecord{
		sampleRecord(1.0, []int{2, 9}),
		sampleRecord(2.0, nil),
		sampleRecord(3.0, []int{16}),
	}
	if err := NewEmitter(ModeHybrid).WriteJSON(path, records); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}

	var parsed []struct {
		T          float64 `json:"t"`
		String     int     `json:"string"`
		Detections []struct {
			Cls  string  `json:"cls"`
			Conf float64 `json:"conf"`
		} `json:"detections"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(parsed) != 3 {
		t.Fatalf("got %d entries, want 3", len(parsed))
	}
	if parsed[0].T != 1.0 || parsed[0].String != 2 {
		t.Errorf("entry 0 = %+v", parsed[0])
	}
	if parsed[1].T != 1.0 || parsed[1].String != 9 {
		t.Errorf("entry 1 = %+v", parsed[1])
	}
	if parsed[2].String != 16 {
		t.Errorf("entry 2 = %+v", parsed[2])
	}
	if parsed[0].Detections[0].Cls != "audio_onset" {
		t.Errorf("cls = %q, want audio_onset", parsed[0].Detections[0].Cls)
	}
}

func TestWriteSRTBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	records := []DetectionRecord{
		sampleRecord(1.0, []int{5}),
		sampleRecord(2.5, nil),
	}
	if err := NewEmitter(ModeDefault).WriteSRT(path, records); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	text := string(data)

	// Flash window: onset - 0.02 for 0.25 s
	if !strings.Contains(text, "00:00:00,980 --> 00:00:01,230") {
		t.Errorf("missing first timing line in:\n%s", text)
	}
	if !strings.Contains(text, "00:00:02,480 --> 00:00:02,730") {
		t.Errorf("missing second timing line in:\n%s", text)
	}
	if !strings.Contains(text, "t=1.00s → 5") {
		t.Errorf("missing first subtitle text in:\n%s", text)
	}
	if !strings.Contains(text, "t=2.50s → None") {
		t.Errorf("missing empty-set subtitle text in:\n%s", text)
	}
}

func TestWriteSRTHybridText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	rec := sampleRecord(1.0, []int{5})
	rec.Source = SourcePitch
	if err := NewEmitter(ModeHybrid).WriteSRT(path, []DetectionRecord{rec}); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	if !strings.Contains(string(data), "PITCH → 5") {
		t.Errorf("missing hybrid subtitle text in:\n%s", data)
	}
}

func TestWriteSRTClampsEarlyOnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	if err := NewEmitter(ModeDefault).WriteSRT(path, []DetectionRecord{sampleRecord(0.01, []int{1})}); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	if !strings.Contains(string(data), "00:00:00,000 --> ") {
		t.Errorf("early onset not clamped to zero:\n%s", data)
	}
}

func TestSRTTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.5, "00:00:01,500"},
		{61.25, "00:01:01,250"},
		{3661.999, "01:01:01,999"},
		{0.9995, "00:00:01,000"},
	}
	for _, tt := range tests {
		if got := srtTime(tt.seconds); got != tt.want {
			t.Errorf("srtTime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
