package vulkan

import (
	"slices"
	"testing"
)

// signalAll assigns each value to a free entry, growing the ring as needed.
func signalAll(r *valueRing, values ...uint64) {
	for _, v := range values {
		i := r.free()
		if i < 0 {
			i = r.grow()
		}
		r.assign(i, v)
	}
}

func TestValueRingReusesRetiredEntries(t *testing.T) {
	var r valueRing
	signalAll(&r, 1, 2, 3)
	if r.size() != 3 {
		t.Fatalf("len = %d, want 3", r.size())
	}

	r.retire(2)
	if got := r.pending(); !slices.Equal(got, []int{2}) {
		t.Errorf("pending = %v, want [2]", got)
	}

	signalAll(&r, 4, 5)
	if r.size() != 3 {
		t.Errorf("len = %d after reuse, want 3", r.size())
	}
	signalAll(&r, 6)
	if r.size() != 4 {
		t.Errorf("len = %d after a full ring, want 4", r.size())
	}
}

func TestValueRingRetire(t *testing.T) {
	tests := []struct {
		name          string
		signalled     []uint64
		retire        []uint64
		wantCompleted uint64
		wantPending   []uint64
	}{
		{"nothing retired", []uint64{1, 2}, nil, 0, []uint64{1, 2}},
		{"in order", []uint64{1, 2, 3}, []uint64{1}, 1, []uint64{2, 3}},
		{"higher retires lower", []uint64{1, 2, 3}, []uint64{3}, 3, nil},
		{"lower after higher is ignored", []uint64{1, 2, 3}, []uint64{2, 1}, 2, []uint64{3}},
		{"gap retires values below", []uint64{2, 5, 9}, []uint64{6}, 6, []uint64{9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r valueRing
			signalAll(&r, tt.signalled...)
			for _, v := range tt.retire {
				r.retire(v)
			}
			if r.completed != tt.wantCompleted {
				t.Errorf("completed = %d, want %d", r.completed, tt.wantCompleted)
			}
			var pending []uint64
			for _, i := range r.pending() {
				pending = append(pending, r.values[i])
			}
			slices.Sort(pending)
			if !slices.Equal(pending, tt.wantPending) {
				t.Errorf("pending values = %v, want %v", pending, tt.wantPending)
			}
		})
	}
}

func TestValueRingTarget(t *testing.T) {
	tests := []struct {
		name      string
		signalled []uint64
		retired   uint64
		wait      uint64
		want      uint64 // value of the chosen entry; 0 means none
	}{
		{"exact", []uint64{1, 2, 3}, 0, 2, 2},
		{"smallest above", []uint64{4, 8, 6}, 0, 5, 6},
		{"above every value", []uint64{1, 2}, 0, 3, 0},
		{"retired entries skipped", []uint64{1, 2, 3}, 2, 1, 3},
		{"empty ring", nil, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r valueRing
			signalAll(&r, tt.signalled...)
			r.retire(tt.retired)
			i := r.target(tt.wait)
			if tt.want == 0 {
				if i != -1 {
					t.Errorf("target(%d) = entry %d (value %d), want none", tt.wait, i, r.values[i])
				}
				return
			}
			if i < 0 {
				t.Fatalf("target(%d) = none, want value %d", tt.wait, tt.want)
			}
			if r.values[i] != tt.want {
				t.Errorf("target(%d) = value %d, want %d", tt.wait, r.values[i], tt.want)
			}
		})
	}
}
