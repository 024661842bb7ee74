package repository

// window is a ring of the latest values of a column. With capacity <= 0
// it grows without bound.
type window struct {
	values   []float64
	capacity int
	next     int   // slot the next value overwrites once full
	total    int64 // values ever appended
}

func newWindow(capacity int) *window {
	return &window{capacity: capacity}
}

func (w *window) push(v float64) {
	w.total++
	if w.capacity <= 0 || len(w.values) < w.capacity {
		w.values = append(w.values, v)
		return
	}
	w.values[w.next] = v
	w.next = (w.next + 1) % w.capacity
}

// reset replaces the contents with the tail of values that fits. Every
// supplied value counts towards total, kept or not.
func (w *window) reset(values []float64) {
	w.total = int64(len(values))
	if w.capacity > 0 && len(values) > w.capacity {
		values = values[len(values)-w.capacity:]
	}
	w.values = append(make([]float64, 0, len(values)), values...)
	w.next = 0
}

// ordered returns a copy of the values, oldest first.
func (w *window) ordered() []float64 {
	out := make([]float64, 0, len(w.values))
	return append(append(out, w.values[w.next:]...), w.values[:w.next]...)
}

func (w *window) len() int { return len(w.values) }
