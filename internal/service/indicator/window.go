package indicator

import "math"

// resumEvery bounds accumulated rounding error in the running sums.
const resumEvery = 4096

// window keeps the last k values with a running sum and sum of squares.
type window struct {
	buf    []float64
	head   int
	n      int
	sum    float64
	sumSq  float64
	pushes int
}

func newWindow(k int) *window {
	return &window{buf: make([]float64, k)}
}

// push adds v, evicting the oldest value once the window is full.
func (w *window) push(v float64) {
	if w.n == len(w.buf) {
		old := w.buf[w.head]
		w.sum -= old
		w.sumSq -= old * old
	} else {
		w.n++
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
	w.sum += v
	w.sumSq += v * v

	w.pushes++
	if w.pushes%resumEvery == 0 {
		w.resum()
	}
}

func (w *window) resum() {
	var s, sq float64
	for i := 0; i < w.n; i++ {
		v := w.buf[i]
		s += v
		sq += v * v
	}
	w.sum, w.sumSq = s, sq
}

func (w *window) full() bool { return w.n == len(w.buf) }

// mean is available only once the window is full.
func (w *window) mean() (float64, bool) {
	if !w.full() {
		return 0, false
	}
	return w.sum / float64(w.n), true
}

// stddev is the sample standard deviation (n-1) of a full window.
func (w *window) stddev() (float64, bool) {
	if !w.full() || w.n < 2 {
		return 0, false
	}
	n := float64(w.n)
	variance := (w.sumSq - w.sum*w.sum/n) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance), true
}
