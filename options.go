package framepace

import (
	"fmt"
	"time"

	"github.com/gogpu/framepace/device"
)

const (
	// MaxFramesInFlight is the largest supported frame overlap.
	MaxFramesInFlight = 3

	// DefaultFramesInFlight is double buffering.
	DefaultFramesInFlight = 2

	// DefaultWaitTimeout bounds a single backpressure wait. A wait that
	// exceeds it is reported as ErrDeviceHang.
	DefaultWaitTimeout = time.Second

	// DefaultConstantsSize is the per-slot constant region size in bytes.
	DefaultConstantsSize = 256

	// MaxConstantsSize is the largest per-slot constant region, the
	// smallest uniform binding size back ends must support.
	MaxConstantsSize = 16 << 10

	// Infinite disables a timeout.
	Infinite = device.Infinite
)

// Config controls frame pacing.
type Config struct {
	// FramesInFlight is the number of frame slots: how far the CPU may run
	// ahead of the GPU. More slots raise throughput but also latency and
	// per-frame memory.
	//
	// Default is 2.
	FramesInFlight int

	// WaitTimeout bounds each fence wait. Infinite waits forever and
	// never reports a hang.
	//
	// Default is one second.
	WaitTimeout time.Duration

	// AcquireTimeout is passed to the device when acquiring a
	// presentable image.
	//
	// Default is Infinite.
	AcquireTimeout time.Duration

	// OwnDevice makes Shutdown destroy the device.
	//
	// Default is false.
	OwnDevice bool

	// ConstantsSize is the size of each slot's frame-local constant
	// region. The stride between regions is rounded up to the device's
	// uniform alignment.
	//
	// Default is 256 bytes.
	ConstantsSize uint64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FramesInFlight: DefaultFramesInFlight,
		WaitTimeout:    DefaultWaitTimeout,
		AcquireTimeout: Infinite,
		ConstantsSize:  DefaultConstantsSize,
	}
}

// Validate checks c for values the engine cannot run with.
func (c Config) Validate() error {
	if c.FramesInFlight < 1 || c.FramesInFlight > MaxFramesInFlight {
		return fmt.Errorf("%w: frames in flight %d not in [1, %d]",
			ErrInvalidConfig, c.FramesInFlight, MaxFramesInFlight)
	}
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("%w: wait timeout %v", ErrInvalidConfig, c.WaitTimeout)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("%w: acquire timeout %v", ErrInvalidConfig, c.AcquireTimeout)
	}
	if c.ConstantsSize == 0 || c.ConstantsSize > MaxConstantsSize {
		return fmt.Errorf("%w: constants size %d not in [1, %d]",
			ErrInvalidConfig, c.ConstantsSize, MaxConstantsSize)
	}
	return nil
}

// Option configures an Engine during creation.
//
// Example:
//
//	e, err := framepace.New(dev,
//		framepace.WithFramesInFlight(3),
//		framepace.WithWaitTimeout(500*time.Millisecond),
//	)
type Option func(*Config)

// WithConfig replaces the whole configuration. Later options still apply.
func WithConfig(c Config) Option {
	return func(o *Config) {
		*o = c
	}
}

// WithFramesInFlight sets the number of frame slots (1 to 3).
func WithFramesInFlight(n int) Option {
	return func(o *Config) {
		o.FramesInFlight = n
	}
}

// WithWaitTimeout sets the fence wait timeout. Use Infinite to never
// report a hang.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *Config) {
		o.WaitTimeout = d
	}
}

// WithAcquireTimeout sets the presentable-image acquire timeout.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *Config) {
		o.AcquireTimeout = d
	}
}

// WithOwnedDevice makes Shutdown destroy the device.
func WithOwnedDevice(own bool) Option {
	return func(o *Config) {
		o.OwnDevice = own
	}
}

// WithConstantsSize sets the size of each slot's constant region.
func WithConstantsSize(n uint64) Option {
	return func(o *Config) {
		o.ConstantsSize = n
	}
}
