package sim

// Resource is a simulated GPU resource (buffer, texture, ...) that records
// when it was destroyed relative to the device timeline.
type Resource struct {
	dev  *Device
	Name string

	destroyed   bool
	destroyedAt uint64
}

// NewResource creates a named resource on d.
func (d *Device) NewResource(name string) *Resource {
	return &Resource{dev: d, Name: name}
}

// Destroy frees the resource. The completed fence value at the time of the
// call is recorded.
func (r *Resource) Destroy() {
	d := r.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if r.destroyed {
		return
	}
	r.destroyed = true
	r.destroyedAt = d.completedLocked()
	d.destroyLog = append(d.destroyLog, r)
}

// Destroyed reports whether the resource was destroyed and the completed
// fence value at that moment.
func (r *Resource) Destroyed() (bool, uint64) {
	r.dev.mu.Lock()
	defer r.dev.mu.Unlock()
	return r.destroyed, r.destroyedAt
}
