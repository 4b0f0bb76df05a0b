package stats

// Window is a fixed-capacity ring buffer of float64 samples.
// Once full, pushing a new sample evicts the oldest in O(1) and
// returns it so the caller can correct running accumulators.
type Window struct {
	buf  []float64
	head int // index of the oldest element
	size int
}

// NewWindow creates an empty window with the given capacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{buf: make([]float64, capacity)}
}

// Push inserts v. If the window was at capacity it returns the evicted
// oldest value and evicted=true.
func (w *Window) Push(v float64) (evicted float64, wasFull bool) {
	if w.size < len(w.buf) {
		w.buf[(w.head+w.size)%len(w.buf)] = v
		w.size++
		return 0, false
	}
	evicted = w.buf[w.head]
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	return evicted, true
}

// Len returns the number of samples currently held.
func (w *Window) Len() int { return w.size }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// Full reports whether the window is at capacity.
func (w *Window) Full() bool { return w.size == len(w.buf) }

// At returns the i-th sample in insertion order (0 = oldest).
func (w *Window) At(i int) float64 {
	return w.buf[(w.head+i)%len(w.buf)]
}

// Latest returns the most recently pushed sample, or 0 when empty.
func (w *Window) Latest() float64 {
	if w.size == 0 {
		return 0
	}
	return w.At(w.size - 1)
}

// Values returns a copy of the window contents in insertion order.
func (w *Window) Values() []float64 {
	out := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.At(i)
	}
	return out
}
