//go:build !nogpu

package vulkan

import (
	"errors"
	"testing"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/gogpu/framepace/device"
)

func TestCheckMapsResults(t *testing.T) {
	tests := []struct {
		name string
		ret  vk.Result
		want error
	}{
		{"device lost", vk.ErrorDeviceLost, device.ErrDeviceLost},
		{"out of date", vk.ErrorOutOfDate, device.ErrPresentFailed},
		{"surface lost", vk.ErrorSurfaceLost, device.ErrPresentFailed},
		{"host memory", vk.ErrorOutOfHostMemory, device.ErrResourceCreation},
		{"device memory", vk.ErrorOutOfDeviceMemory, device.ErrResourceCreation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check("op", tt.ret)
			if !errors.Is(err, tt.want) {
				t.Errorf("check(%d) = %v, want %v", tt.ret, err, tt.want)
			}
		})
	}

	if err := check("op", vk.Success); err != nil {
		t.Errorf("check(Success) = %v, want nil", err)
	}
	err := check("op", vk.ErrorInitializationFailed)
	if err == nil {
		t.Fatal("check(ErrorInitializationFailed) = nil")
	}
	for _, s := range []error{device.ErrDeviceLost, device.ErrPresentFailed, device.ErrResourceCreation} {
		if errors.Is(err, s) {
			t.Errorf("unmapped result matched %v", s)
		}
	}
}

func TestNanos(t *testing.T) {
	if got := nanos(device.Infinite); got != vk.MaxUint64 {
		t.Errorf("nanos(Infinite) = %d, want MaxUint64", got)
	}
	if got := nanos(-1); got != vk.MaxUint64 {
		t.Errorf("nanos(-1) = %d, want MaxUint64", got)
	}
	if got := nanos(2 * time.Millisecond); got != 2_000_000 {
		t.Errorf("nanos(2ms) = %d, want 2000000", got)
	}
}

func TestNewRejectsMissingHandles(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with nil handles should fail")
	}
}

func TestAcquireResult(t *testing.T) {
	tests := []struct {
		name    string
		ret     vk.Result
		sub     bool
		wantErr error
	}{
		{"success", vk.Success, false, nil},
		{"suboptimal", vk.Suboptimal, true, nil},
		{"timeout", vk.Timeout, false, device.ErrPresentFailed},
		{"not ready", vk.NotReady, false, device.ErrPresentFailed},
		{"out of date", vk.ErrorOutOfDate, false, device.ErrPresentFailed},
		{"device lost", vk.ErrorDeviceLost, false, device.ErrDeviceLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := acquireResult(tt.ret, time.Millisecond)
			if sub != tt.sub {
				t.Errorf("suboptimal = %v, want %v", sub, tt.sub)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPresentResultSuboptimalIsNotAnError(t *testing.T) {
	tests := []struct {
		name    string
		ret     vk.Result
		sub     bool
		wantErr error
	}{
		{"success", vk.Success, false, nil},
		{"suboptimal", vk.Suboptimal, true, nil},
		{"out of date", vk.ErrorOutOfDate, false, device.ErrPresentFailed},
		{"surface lost", vk.ErrorSurfaceLost, false, device.ErrPresentFailed},
		{"device lost", vk.ErrorDeviceLost, false, device.ErrDeviceLost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := presentResult(tt.ret)
			if sub != tt.sub {
				t.Errorf("suboptimal = %v, want %v", sub, tt.sub)
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetLoggerNilFallsBack(t *testing.T) {
	d := &Device{}
	d.SetLogger(nil)
	if d.logger == nil {
		t.Fatal("SetLogger(nil) left a nil logger")
	}
	d.logger.Debug("vulkan: no panic")
}

func TestReleaseImageParksAcquisition(t *testing.T) {
	d := &Device{
		images:    []*swapImage{{}, {}},
		slots:     []*slot{{parked: -1}},
		recorders: []*Recorder{nil},
	}

	// Nothing acquired: release is ignored.
	d.ReleaseImage(0, 1)
	if d.slots[0].parked != -1 {
		t.Fatalf("parked = %d without an acquisition", d.slots[0].parked)
	}

	d.slots[0].acquired = true
	d.ReleaseImage(0, 1)
	if d.slots[0].parked != 1 {
		t.Fatalf("parked = %d, want 1", d.slots[0].parked)
	}

	img, err := d.Acquire(0, time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if img != 1 {
		t.Errorf("Acquire() = %d, want parked image 1", img)
	}
	if !d.slots[0].acquired {
		t.Error("re-acquired image lost its pending semaphore signal")
	}
	if d.slots[0].parked != -1 {
		t.Errorf("parked = %d after Acquire, want -1", d.slots[0].parked)
	}

	// Out-of-range slots and images are ignored.
	d.ReleaseImage(3, 0)
	d.ReleaseImage(0, 5)
	if d.slots[0].parked != -1 {
		t.Errorf("parked = %d after bad release", d.slots[0].parked)
	}
}
