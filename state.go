package framepace

import "fmt"

// FrameState is where a frame slot is in the per-frame state machine:
//
//	Idle -> Recording -> Submitted -> Presented -> Retiring -> Idle
//
// Retiring happens lazily, the next time the slot is acquired.
type FrameState int

const (
	// Idle slots are free for recording.
	Idle FrameState = iota

	// Recording slots belong to the CPU between BeginFrame and
	// EndFrameAndPresent.
	Recording

	// Submitted slots are executing on the device.
	Submitted

	// Presented slots have been handed to the compositor (or the present
	// failed); they are still in flight until their fence value retires.
	Presented

	// Retiring slots are being waited on by the backpressure controller.
	Retiring
)

var frameStateNames = [...]string{
	Idle:      "Idle",
	Recording: "Recording",
	Submitted: "Submitted",
	Presented: "Presented",
	Retiring:  "Retiring",
}

// String returns the state name.
func (s FrameState) String() string {
	if s >= 0 && int(s) < len(frameStateNames) {
		return frameStateNames[s]
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}
