package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestHandDetectorUnavailable(t *testing.T) {
	d := NewCommandHandDetector("")
	_, err := d.Run(context.Background(), "in.mp4", t.TempDir(), "")
	if !errors.Is(err, ErrHandUnavailable) {
		t.Fatalf("err = %v, want ErrHandUnavailable", err)
	}
}

func TestCountCSVRows(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty file", "", 0},
		{"header only", "time,hand\n", 0},
		{"two rows", "time,hand\n1.0,left\n2.0,right\n", 2},
		{"no trailing newline", "time,hand\n1.0,left", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "hand.csv")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := countCSVRows(path)
			if err != nil {
				t.Fatalf("countCSVRows: %v", err)
			}
			if got != tt.want {
				t.Errorf("rows = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCountCSVRowsMissingFile(t *testing.T) {
	if _, err := countCSVRows(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
