package vulkan

// valueRing tracks which fence values occupy which ring entries. It holds no
// Vulkan handles; Fence keeps the handles in a parallel slice.
//
// Values complete in queue order, so retiring v frees every entry at or
// below v.
type valueRing struct {
	values    []uint64
	busy      []bool
	completed uint64
}

// free returns the index of an idle entry, or -1 when every entry is busy
// and the caller must grow the ring.
func (r *valueRing) free() int {
	for i, b := range r.busy {
		if !b {
			return i
		}
	}
	return -1
}

// grow appends an idle entry and returns its index.
func (r *valueRing) grow() int {
	r.values = append(r.values, 0)
	r.busy = append(r.busy, false)
	return len(r.busy) - 1
}

// assign marks entry i busy with value.
func (r *valueRing) assign(i int, value uint64) {
	r.values[i] = value
	r.busy[i] = true
}

// retire raises the completed value to v and frees every entry at or below
// it. A lower v changes nothing.
func (r *valueRing) retire(v uint64) {
	if v > r.completed {
		r.completed = v
	}
	for i, b := range r.busy {
		if b && r.values[i] <= r.completed {
			r.busy[i] = false
		}
	}
}

// target returns the busy entry with the smallest value at or above v, whose
// completion implies v. It returns -1 when none exists.
func (r *valueRing) target(v uint64) int {
	t := -1
	for i, b := range r.busy {
		if b && r.values[i] >= v && (t < 0 || r.values[i] < r.values[t]) {
			t = i
		}
	}
	return t
}

// pending returns the busy entry indices.
func (r *valueRing) pending() []int {
	var out []int
	for i, b := range r.busy {
		if b {
			out = append(out, i)
		}
	}
	return out
}

func (r *valueRing) size() int { return len(r.busy) }
