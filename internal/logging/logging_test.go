package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewFromConfigJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewFromConfig(&buf, "warn", "json")
	l.Info("hidden")
	l.Warn("write failed", "op", "add", "err", "boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %q", out)
	}
	for _, want := range []string{`"msg":"write failed"`, `"op":"add"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %s", out, want)
		}
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tada.log")
	l, closer, err := OpenFile(path, "info", "logfmt")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	l.Error("subscribe", "err", "unavailable")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "err=unavailable") {
		t.Errorf("log file: got %q", b)
	}
}
