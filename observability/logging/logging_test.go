package logging

import (
	"encoding/json"
	"os"
	"testing"
)

func TestSetupDefaultsServiceName(t *testing.T) {
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	logger := Setup("  ", "dev")
	logger.Info("ledger opened", "path", "/tmp/dgx")
	w.Close()

	var line struct {
		Timestamp string `json:"timestamp"`
		Severity  string `json:"severity"`
		Message   string `json:"message"`
		Service   string `json:"service"`
		Env       string `json:"env"`
	}
	if err := json.NewDecoder(r).Decode(&line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line.Service != "dogxsale" {
		t.Fatalf("expected default service name, got %q", line.Service)
	}
	if line.Env != "dev" || line.Severity != "INFO" || line.Message != "ledger opened" {
		t.Fatalf("unexpected log line: %+v", line)
	}
	if line.Timestamp == "" {
		t.Fatal("expected timestamp on log line")
	}
}
