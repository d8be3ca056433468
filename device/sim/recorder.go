package sim

import (
	"errors"
	"fmt"
	"image/color"
)

// ErrRecorderBusy is returned by Reset when the recorder's last submission
// has not completed yet.
var ErrRecorderBusy = errors.New("sim: recorder reset while executing")

// Command is one recorded command.
type Command struct {
	Op    string
	Image int
	Color color.RGBA
}

// Recorder is a simulated command recorder.
type Recorder struct {
	dev       *Device
	slot      int
	image     int
	recording bool
	busy      bool
	destroyed bool
	cmds      []Command
}

// Reset discards recorded commands. Resetting while the previous submission
// is still executing counts as a violation and fails.
func (r *Recorder) Reset() error {
	d := r.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.busy {
		d.stats.Violations++
		return fmt.Errorf("%w: slot %d", ErrRecorderBusy, r.slot)
	}
	if r.recording {
		return fmt.Errorf("sim: reset: slot %d still recording", r.slot)
	}
	r.cmds = r.cmds[:0]
	d.stats.Resets++
	return nil
}

// Begin opens recording into image.
func (r *Recorder) Begin(image int) error {
	d := r.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.recording {
		return fmt.Errorf("sim: begin: slot %d already recording", r.slot)
	}
	if image < 0 || image >= len(d.images) {
		return fmt.Errorf("sim: begin: image %d out of range", image)
	}
	r.recording = true
	r.image = image
	d.images[image].renderTarget = true
	r.cmds = append(r.cmds, Command{Op: "barrier:present->target", Image: image})
	return nil
}

// End closes recording.
func (r *Recorder) End() error {
	d := r.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if !r.recording {
		return fmt.Errorf("sim: end: slot %d not recording", r.slot)
	}
	r.recording = false
	if r.image < len(d.images) {
		d.images[r.image].renderTarget = false
	}
	r.cmds = append(r.cmds, Command{Op: "barrier:target->present", Image: r.image})
	return nil
}

// Clear records a clear of the target image.
func (r *Recorder) Clear(c color.Color) {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()

	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	r.cmds = append(r.cmds, Command{Op: "clear", Image: r.image, Color: rgba})
}

// Native returns the recorder itself.
func (r *Recorder) Native() any { return r }

// Slot returns the slot index.
func (r *Recorder) Slot() int { return r.slot }

// Commands returns the commands recorded since the last reset.
func (r *Recorder) Commands() []Command {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

// Busy reports whether the last submission is still executing.
func (r *Recorder) Busy() bool {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	return r.busy
}

// Destroy marks the recorder destroyed.
func (r *Recorder) Destroy() {
	r.dev.mu.Lock()
	r.destroyed = true
	r.dev.mu.Unlock()
}

// Destroyed reports whether Destroy was called.
func (r *Recorder) Destroyed() bool {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	return r.destroyed
}
