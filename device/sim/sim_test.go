package sim

import (
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/gogpu/framepace/device"
)

func recordAndSubmit(t *testing.T, d *Device, rec device.Recorder, slot, image int) {
	t.Helper()
	if err := rec.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if err := rec.Begin(image); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	rec.Clear(color.White)
	if err := rec.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := d.Submit(slot, image); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestManualCompletesInOrder(t *testing.T) {
	d := New(Config{Mode: Manual})
	f, _ := d.CreateFence()
	recs, err := d.CreateFrameSlots(2)
	if err != nil {
		t.Fatalf("CreateFrameSlots() error = %v", err)
	}

	for i, rec := range recs {
		recordAndSubmit(t, d, rec, i, i)
		if err := d.Signal(f, uint64(i+1)); err != nil {
			t.Fatalf("Signal() error = %v", err)
		}
	}
	if got := d.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}

	d.CompleteNext()
	if v, _ := f.Completed(); v != 1 {
		t.Errorf("Completed() = %d, want 1", v)
	}
	if recs[0].(*Recorder).Busy() || !recs[1].(*Recorder).Busy() {
		t.Error("only the first recorder should be idle after one completion")
	}

	if n := d.CompleteAll(); n != 1 {
		t.Errorf("CompleteAll() = %d, want 1", n)
	}
	if v, _ := f.Completed(); v != 2 {
		t.Errorf("Completed() = %d, want 2", v)
	}
}

func TestResetWhileExecutingIsViolation(t *testing.T) {
	d := New(Config{Mode: Manual})
	f, _ := d.CreateFence()
	recs, _ := d.CreateFrameSlots(1)

	recordAndSubmit(t, d, recs[0], 0, 0)
	if err := d.Signal(f, 1); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	if err := recs[0].Reset(); !errors.Is(err, ErrRecorderBusy) {
		t.Errorf("Reset() error = %v, want ErrRecorderBusy", err)
	}
	if got := d.Stats().Violations; got != 1 {
		t.Errorf("Violations = %d, want 1", got)
	}

	d.CompleteAll()
	if err := recs[0].Reset(); err != nil {
		t.Errorf("Reset() after completion error = %v", err)
	}
}

func TestFenceWait(t *testing.T) {
	d := New(Config{Mode: Latency, Latency: 5 * time.Millisecond})
	f, _ := d.CreateFence()

	if err := d.Signal(f, 1); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}
	ok, err := f.Wait(1, time.Second)
	if err != nil || !ok {
		t.Fatalf("Wait() = %v, %v, want true, nil", ok, err)
	}

	// Never signalled: times out.
	ok, err = f.Wait(2, 10*time.Millisecond)
	if err != nil || ok {
		t.Errorf("Wait() = %v, %v, want false, nil", ok, err)
	}
	d.Destroy()
}

func TestAcquirePresent(t *testing.T) {
	d := New(Config{Images: 2})
	recs, _ := d.CreateFrameSlots(1)

	img, err := d.Acquire(0, device.Infinite)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := recs[0].Begin(img); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := d.Present(0, img); err == nil {
		t.Error("Present() of an image in render-target state should fail")
	}
	if err := recs[0].End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := d.Present(0, img); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	d.FailNextAcquire(1)
	if _, err := d.Acquire(0, device.Infinite); !errors.Is(err, device.ErrPresentFailed) {
		t.Errorf("Acquire() error = %v, want ErrPresentFailed", err)
	}
	d.FailNextPresent(1)
	if err := d.Present(0, img); !errors.Is(err, device.ErrPresentFailed) {
		t.Errorf("Present() error = %v, want ErrPresentFailed", err)
	}

	next, _ := d.Acquire(0, device.Infinite)
	if next != (img+1)%2 {
		t.Errorf("Acquire() = %d, want %d", next, (img+1)%2)
	}
	if got := d.Presented(); len(got) != 1 || got[0] != img {
		t.Errorf("Presented() = %v, want [%d]", got, img)
	}
}

func TestLoseUnblocksWaiters(t *testing.T) {
	d := New(Config{Mode: Manual})
	f, _ := d.CreateFence()
	if err := d.Signal(f, 1); err != nil {
		t.Fatalf("Signal() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.Wait(1, device.Infinite)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	d.Lose()

	select {
	case err := <-done:
		if !errors.Is(err, device.ErrDeviceLost) {
			t.Errorf("Wait() error = %v, want ErrDeviceLost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() not released by Lose()")
	}
	if err := d.Signal(f, 2); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("Signal() after loss error = %v, want ErrDeviceLost", err)
	}
	if err := d.WaitIdle(); !errors.Is(err, device.ErrDeviceLost) {
		t.Errorf("WaitIdle() after loss error = %v, want ErrDeviceLost", err)
	}
}

func TestResourceRecordsCompletedValue(t *testing.T) {
	d := New(Config{Mode: Manual})
	f, _ := d.CreateFence()
	_ = d.Signal(f, 1)
	d.CompleteAll()

	r := d.NewResource("vertex buffer")
	r.Destroy()
	r.Destroy()

	ok, at := r.Destroyed()
	if !ok || at != 1 {
		t.Errorf("Destroyed() = %v, %d, want true, 1", ok, at)
	}
	if got := len(d.Destroyed()); got != 1 {
		t.Errorf("destroy log has %d entries, want 1", got)
	}
}

func TestInvalidSlotCount(t *testing.T) {
	d := New(Config{})
	if _, err := d.CreateFrameSlots(0); !errors.Is(err, device.ErrResourceCreation) {
		t.Errorf("CreateFrameSlots(0) error = %v, want ErrResourceCreation", err)
	}
}

func TestModeString(t *testing.T) {
	for m, want := range map[Mode]string{Instant: "instant", Manual: "manual", Latency: "latency", Mode(9): "Mode(9)"} {
		if got := m.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(m), got, want)
		}
	}
}

func TestReleaseImage(t *testing.T) {
	d := New(Config{Images: 3})
	if _, err := d.CreateFrameSlots(1); err != nil {
		t.Fatalf("CreateFrameSlots() error = %v", err)
	}

	img, err := d.Acquire(0, time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	// A release of a different image is ignored.
	d.ReleaseImage(0, img+1)
	if got := d.Stats().Releases; got != 0 {
		t.Fatalf("Releases = %d after mismatched release, want 0", got)
	}

	d.ReleaseImage(0, img)
	again, err := d.Acquire(0, time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if again != img {
		t.Errorf("Acquire() after release = %d, want %d", again, img)
	}
	st := d.Stats()
	if st.Releases != 1 || st.Violations != 0 {
		t.Errorf("Releases/Violations = %d/%d, want 1/0", st.Releases, st.Violations)
	}
}

func TestAcquireWithUnconsumedImageIsViolation(t *testing.T) {
	d := New(Config{})
	if _, err := d.CreateFrameSlots(1); err != nil {
		t.Fatalf("CreateFrameSlots() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := d.Acquire(0, time.Second); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if v := d.Stats().Violations; v != 1 {
		t.Errorf("Violations = %d, want 1", v)
	}
}

func TestConstantBuffer(t *testing.T) {
	d := New(Config{Mode: Manual})
	if got := d.UniformAlignment(); got != DefaultUniformAlignment {
		t.Errorf("UniformAlignment() = %d, want %d", got, DefaultUniformAlignment)
	}
	if _, err := d.CreateConstantBuffer(0); !errors.Is(err, device.ErrResourceCreation) {
		t.Errorf("CreateConstantBuffer(0) error = %v, want ErrResourceCreation", err)
	}

	cb, err := d.CreateConstantBuffer(16)
	if err != nil {
		t.Fatalf("CreateConstantBuffer() error = %v", err)
	}
	b := cb.(*ConstantBuffer)
	if err := b.Write(4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := b.Write(14, []byte{1, 2, 3}); err == nil {
		t.Error("Write() past end succeeded")
	}
	if got := b.Bytes()[4:8]; string(got) != "\x01\x02\x03\x04" {
		t.Errorf("Bytes()[4:8] = %v", got)
	}
	w := b.Writes()
	if len(w) != 1 || w[0].Offset != 4 || w[0].Len != 4 || w[0].Completed != 0 {
		t.Errorf("Writes() = %+v", w)
	}

	b.Destroy()
	if !b.Destroyed() {
		t.Error("Destroyed() = false after Destroy")
	}
	if err := b.Write(0, []byte{1}); err == nil {
		t.Error("Write() to destroyed buffer succeeded")
	}
}
