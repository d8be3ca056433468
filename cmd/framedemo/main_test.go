package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig() error = %v", err)
	}
	if cfg != defaultConfig() {
		t.Errorf("parseConfig() = %+v, want defaults", cfg)
	}
}

func TestParseConfigFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	data := "backend: sim\nframes: 42\nframes_in_flight: 3\nlatency: 2ms\nassets: 5\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseConfig([]string{"-config", path, "-frames", "7"}, io.Discard)
	if err != nil {
		t.Fatalf("parseConfig() error = %v", err)
	}
	if cfg.Frames != 7 {
		t.Errorf("Frames = %d, want 7 (flag overrides file)", cfg.Frames)
	}
	if cfg.FramesInFlight != 3 {
		t.Errorf("FramesInFlight = %d, want 3 (from file)", cfg.FramesInFlight)
	}
	if cfg.Latency != 2*time.Millisecond {
		t.Errorf("Latency = %v, want 2ms", cfg.Latency)
	}
	if cfg.Assets != 5 {
		t.Errorf("Assets = %d, want 5", cfg.Assets)
	}
}

func TestParseConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
		file string
	}{
		{"too many in flight", []string{"-inflight", "4"}, ""},
		{"negative frames", []string{"-frames", "-1"}, ""},
		{"unknown yaml field", nil, "bogus: 1\n"},
		{"missing file", []string{"-config", "/nonexistent/demo.yaml"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.file != "" {
				path := filepath.Join(t.TempDir(), "demo.yaml")
				if err := os.WriteFile(path, []byte(tt.file), 0o600); err != nil {
					t.Fatal(err)
				}
				args = append(args, "-config", path)
			}
			if _, err := parseConfig(args, io.Discard); err == nil {
				t.Error("parseConfig() should fail")
			}
		})
	}
}

func TestFlash(t *testing.T) {
	if c := flash(0); c.R != 0 || c.G != 0 || c.B != 0 || c.A != 0xff {
		t.Errorf("flash(0) = %v, want opaque black", c)
	}
	// sin(188/120) is close to 1.
	c := flash(188)
	base := palette[0]
	if diff := int(base.B) - int(c.B); diff < 0 || diff > 1 {
		t.Errorf("flash(188).B = %d, want about %d", c.B, base.B)
	}
}

func TestRunSim(t *testing.T) {
	cfg := defaultConfig()
	cfg.Frames = 30
	cfg.Latency = time.Millisecond
	cfg.Assets = 3

	var out bytes.Buffer
	if err := run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for _, want := range []string{"backend:         sim", "frames:          30 (30 presented", "30 submitted, 30 completed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunUnknownBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Backend = "does-not-exist"
	if err := run(context.Background(), cfg, io.Discard); err == nil {
		t.Error("run() with unknown backend should fail")
	}
}

func TestRealMainReportsConfigErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	if err := os.WriteFile(path, []byte("frames_in_flight: 9\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid config", []string{"-config", path}, "framedemo: framepace: invalid config"},
		{"negative value", []string{"-assets", "-2"}, "framedemo: negative value in config"},
		{"missing file", []string{"-config", "/nonexistent/demo.yaml"}, "/nonexistent/demo.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := realMain(tt.args, &stdout, &stderr); code != 2 {
				t.Errorf("realMain() = %d, want 2", code)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.want)
			}
			if stdout.Len() != 0 {
				t.Errorf("stdout = %q, want empty", stdout.String())
			}
		})
	}
}

func TestRealMainHelp(t *testing.T) {
	var stderr bytes.Buffer
	if code := realMain([]string{"-h"}, io.Discard, &stderr); code != 0 {
		t.Errorf("realMain(-h) = %d, want 0", code)
	}
	if !strings.Contains(stderr.String(), "-inflight") {
		t.Errorf("usage missing flags:\n%s", stderr.String())
	}
}

func TestRealMainRuns(t *testing.T) {
	var stdout bytes.Buffer
	code := realMain([]string{"-frames", "5", "-latency", "0", "-assets", "1"}, &stdout, io.Discard)
	if code != 0 {
		t.Fatalf("realMain() = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "frames:          5 (5 presented") {
		t.Errorf("stdout missing frame count:\n%s", stdout.String())
	}
}

func TestFrameConstants(t *testing.T) {
	b := frameConstants(0x0102, palette[0])
	if len(b) != 12 {
		t.Fatalf("len = %d, want 12", len(b))
	}
	if b[0] != 0x02 || b[1] != 0x01 {
		t.Errorf("frame bytes = % x, want little endian", b[:8])
	}
	if b[8] != palette[0].R || b[11] != palette[0].A {
		t.Errorf("colour bytes = % x", b[8:])
	}
}
