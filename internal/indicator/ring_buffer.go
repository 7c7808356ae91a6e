package indicator

// ringBuffer keeps the most recent capacity values.
type ringBuffer struct {
	data  []float64
	start int
	size  int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		data:  make([]float64, capacity),
		start: 0,
		size:  0,
	}
}

func (r *ringBuffer) Push(value float64) {
	capacity := len(r.data)

	if r.size < capacity {
		r.data[(r.start+r.size)%capacity] = value
		r.size++

		return
	}

	r.data[r.start] = value
	r.start = (r.start + 1) % capacity
}

func (r *ringBuffer) Full() bool {
	return r.size == len(r.data)
}

func (r *ringBuffer) Len() int {
	return r.size
}

// Values returns a copy of the buffered values, oldest first.
func (r *ringBuffer) Values() []float64 {
	out := make([]float64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}

	return out
}

func (r *ringBuffer) Reset() {
	r.start = 0
	r.size = 0
}
