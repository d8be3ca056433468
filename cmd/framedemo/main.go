// Command framedemo drives the frame pacer with a flashing clear colour and a
// concurrent asset streamer, then prints pacing statistics.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/loov/hrtime"
	"golang.org/x/image/colornames"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/framepace"
	"github.com/gogpu/framepace/device"
	"github.com/gogpu/framepace/device/sim"
	"github.com/gogpu/framepace/retire"
)

// maxRecreates bounds consecutive surface recreations before giving up.
const maxRecreates = 3

var palette = []color.RGBA{
	colornames.Cornflowerblue,
	colornames.Coral,
	colornames.Mediumseagreen,
	colornames.Goldenrod,
	colornames.Orchid,
}

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain runs the demo and returns the process exit code.
func realMain(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "framedemo: %v\n", err)
		return 2
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	framepace.SetLogger(logger)

	if err := run(context.Background(), cfg, stdout); err != nil {
		logger.Error("framedemo failed", "err", err)
		return 1
	}
	return 0
}

// openDevice opens the configured back end. The sim back end is built here
// so the latency flag applies; it is also returned for the asset streamer.
func openDevice(cfg demoConfig) (device.Device, *sim.Device, error) {
	if cfg.Backend == "sim" {
		mode := sim.Instant
		if cfg.Latency > 0 {
			mode = sim.Latency
		}
		d := sim.New(sim.Config{Images: cfg.Images, Mode: mode, Latency: cfg.Latency})
		return d, d, nil
	}

	opts := device.Options{Images: cfg.Images, Width: cfg.Width, Height: cfg.Height}
	if cfg.Backend == "" {
		d, err := device.Open(opts)
		return d, nil, err
	}
	d, err := device.OpenByName(cfg.Backend, opts)
	return d, nil, err
}

func run(ctx context.Context, cfg demoConfig, out io.Writer) error {
	dev, simDev, err := openDevice(cfg)
	if err != nil {
		return err
	}
	eng, err := framepace.New(dev,
		framepace.WithFramesInFlight(cfg.FramesInFlight),
		framepace.WithWaitTimeout(cfg.WaitTimeout),
		framepace.WithOwnedDevice(true),
	)
	if err != nil {
		dev.Destroy()
		return err
	}

	start := hrtime.Now()
	done := make(chan struct{})
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		return renderLoop(ctx, eng, cfg.Frames)
	})
	g.Go(func() error {
		return stream(ctx, eng, simDev, cfg.Assets, done)
	})
	loopErr := g.Wait()
	elapsed := hrtime.Since(start)

	if err := eng.Shutdown(); err != nil {
		return errors.Join(loopErr, err)
	}
	printStats(out, dev.Name(), eng.Stats(), elapsed)
	return loopErr
}

// renderLoop renders frames frames. An out-of-date surface is handled by
// draining the GPU and trying again.
func renderLoop(ctx context.Context, eng *framepace.Engine, frames int) error {
	recreates := 0
	for rendered := 0; rendered < frames; {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := eng.BeginFrame()
		if err == nil {
			c := flash(f.Number())
			werr := f.Constants().Write(0, frameConstants(f.Number(), c))
			f.Recorder().Clear(c)
			err = errors.Join(werr, eng.EndFrameAndPresent())
			rendered++
		}
		switch {
		case err == nil:
			recreates = 0
		case framepace.IsFatal(err):
			return err
		case errors.Is(err, framepace.ErrPresentFailed):
			recreates++
			if recreates > maxRecreates {
				return err
			}
			if err := eng.WaitIdle(); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// stream simulates an asset streamer that replaces n resources per
// presented frame and retires the old ones from its own goroutine.
func stream(ctx context.Context, eng *framepace.Engine, simDev *sim.Device, n int, done <-chan struct{}) error {
	if n == 0 {
		return nil
	}
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	var last uint64
	for id := 0; ; {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case <-ticker.C:
		}
		frame := eng.FrameNumber()
		if frame == last {
			continue
		}
		last = frame
		for i := 0; i < n; i++ {
			eng.Retire(newAsset(simDev, id))
			id++
		}
	}
}

func newAsset(simDev *sim.Device, id int) retire.Resource {
	name := fmt.Sprintf("asset-%d", id)
	if simDev != nil {
		return simDev.NewResource(name)
	}
	return retire.ResourceFunc(func() {
		framepace.Logger().Debug("framedemo: asset destroyed", "name", name)
	})
}

// frameConstants packs the per-frame uniforms: the frame number followed by
// the clear colour.
func frameConstants(frame uint64, c color.RGBA) []byte {
	b := binary.LittleEndian.AppendUint64(make([]byte, 0, 12), frame)
	return append(b, c.R, c.G, c.B, c.A)
}

// flash returns the clear colour for frame: a palette entry scaled by
// |sin(frame/120)|.
func flash(frame uint64) color.RGBA {
	base := palette[int(frame/240)%len(palette)]
	k := math.Abs(math.Sin(float64(frame) / 120))
	return color.RGBA{
		R: uint8(float64(base.R) * k),
		G: uint8(float64(base.G) * k),
		B: uint8(float64(base.B) * k),
		A: 0xff,
	}
}

func printStats(w io.Writer, backend string, st framepace.Stats, elapsed time.Duration) {
	fps := 0.0
	if elapsed > 0 {
		fps = float64(st.Presented) / elapsed.Seconds()
	}
	fmt.Fprintf(w, "backend:         %s\n", backend)
	fmt.Fprintf(w, "frames:          %d (%d presented, %d present failures)\n", st.Frames, st.Presented, st.PresentFailures)
	fmt.Fprintf(w, "elapsed:         %v (%.1f fps)\n", elapsed.Round(time.Millisecond), fps)
	fmt.Fprintf(w, "blocking waits:  %d (avg %v, max %v)\n", st.BlockingWaits, st.AverageWait(), st.MaxWait)
	fmt.Fprintf(w, "max in flight:   %d\n", st.MaxInFlight)
	fmt.Fprintf(w, "retired:         %d (%d pending)\n", st.Retired, st.PendingRetire)
	fmt.Fprintf(w, "fence:           %d submitted, %d completed\n", st.Submitted, st.Completed)
}
