package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/framepace"
)

// demoConfig is the demo's configuration. It can be loaded from a YAML file
// with -config; flags given on the command line win over the file.
type demoConfig struct {
	Backend        string        `yaml:"backend"`
	Frames         int           `yaml:"frames"`
	FramesInFlight int           `yaml:"frames_in_flight"`
	Images         int           `yaml:"images"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	Latency        time.Duration `yaml:"latency"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
	Assets         int           `yaml:"assets"`
	Verbose        bool          `yaml:"verbose"`
}

func defaultConfig() demoConfig {
	return demoConfig{
		Backend:        "sim",
		Frames:         600,
		FramesInFlight: framepace.DefaultFramesInFlight,
		Images:         3,
		Width:          640,
		Height:         480,
		Latency:        4 * time.Millisecond,
		WaitTimeout:    framepace.DefaultWaitTimeout,
		Assets:         2,
	}
}

// parseConfig parses args. A -config file is applied over the defaults and
// the explicit flags are then applied again on top.
func parseConfig(args []string, stderr io.Writer) (demoConfig, error) {
	cfg := defaultConfig()

	fs := flag.NewFlagSet("framedemo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "YAML config file")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "device back end (sim, wgpu; empty picks the best available)")
	fs.IntVar(&cfg.Frames, "frames", cfg.Frames, "number of frames to render")
	fs.IntVar(&cfg.FramesInFlight, "inflight", cfg.FramesInFlight, "frames in flight (1-3)")
	fs.IntVar(&cfg.Images, "images", cfg.Images, "presentable images")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "image width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "image height")
	fs.DurationVar(&cfg.Latency, "latency", cfg.Latency, "simulated GPU latency per frame (sim only)")
	fs.DurationVar(&cfg.WaitTimeout, "timeout", cfg.WaitTimeout, "fence wait timeout")
	fs.IntVar(&cfg.Assets, "assets", cfg.Assets, "resources streamed and retired per frame")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "debug logging")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if *path == "" {
		return cfg, cfg.validate()
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("framedemo: %s: %w", *path, err)
	}
	// Re-apply the command line so flags override the file.
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c demoConfig) validate() error {
	if c.Frames < 0 || c.Assets < 0 || c.Latency < 0 {
		return fmt.Errorf("negative value in config")
	}
	pc := framepace.DefaultConfig()
	pc.FramesInFlight = c.FramesInFlight
	pc.WaitTimeout = c.WaitTimeout
	return pc.Validate()
}
