package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cv-classifier.log")

	log, err := New(Options{JSON: true, File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info("model saved")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"step":"model saved"`) {
		t.Fatalf("unexpected log file content %q", data)
	}
}
