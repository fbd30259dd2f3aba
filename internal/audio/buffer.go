package audio

import "sync"

// DefaultWindow is the number of trailing samples used for level analysis.
const DefaultWindow = 2048

// buffer keeps a full recording plus a fixed analysis window.
type buffer struct {
	mu       sync.Mutex
	window   []float32
	pos      int
	filled   bool
	recorded []float32
	limit    int
}

func newBuffer(window, limit int) *buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &buffer{window: make([]float32, window), limit: limit}
}

func (b *buffer) write(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range samples {
		b.window[b.pos] = s
		b.pos++
		if b.pos == len(b.window) {
			b.pos = 0
			b.filled = true
		}
	}
	if b.limit > 0 && len(b.recorded)+len(samples) > b.limit {
		room := b.limit - len(b.recorded)
		if room <= 0 {
			return
		}
		samples = samples[:room]
	}
	b.recorded = append(b.recorded, samples...)
}

// snapshot returns the analysis window in chronological order.
func (b *buffer) snapshot() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.filled {
		out := make([]float32, b.pos)
		copy(out, b.window[:b.pos])
		return out
	}
	out := make([]float32, 0, len(b.window))
	out = append(out, b.window[b.pos:]...)
	return append(out, b.window[:b.pos]...)
}

func (b *buffer) pcm() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float32, len(b.recorded))
	copy(out, b.recorded)
	return out
}
