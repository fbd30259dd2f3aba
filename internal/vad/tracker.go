// Package vad tracks speech and silence timing from periodic audio level samples.
package vad

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/verte-zerg/readaloud/internal/model"
)

const (
	// DefaultThresholdDB separates voiced samples from silent ones.
	DefaultThresholdDB = -50.0
	// DefaultMinSilence is how long a silence span stays open before it is charged.
	DefaultMinSilence = 200 * time.Millisecond
	// DefaultInterval approximates one display frame at 60 Hz.
	DefaultInterval = 16 * time.Millisecond
)

// ErrRunning is returned by Run when the tracker already samples a source.
var ErrRunning = errors.New("vad: tracker already running")

// LevelSource yields the level of the current time-domain buffer in decibels.
type LevelSource interface {
	Level() (float64, error)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold overrides the voiced/silent threshold in dB.
func WithThreshold(db float64) Option {
	return func(t *Tracker) { t.threshold = db }
}

// WithMinSilence overrides the minimum charged silence span.
func WithMinSilence(d time.Duration) Option {
	return func(t *Tracker) { t.minSilence = d }
}

// WithInterval overrides the sampling period of Run.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger used for sampling errors.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// Tracker accumulates VoiceActivityStats for one attempt. It is safe for
// concurrent use; the sampling loop and readers share one mutex.
type Tracker struct {
	threshold  float64
	minSilence time.Duration
	interval   time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu           sync.Mutex
	stats        model.VoiceActivityStats
	lastVoice    time.Time
	silenceStart time.Time
	lastLevel    float64
	frozen       bool

	cancel context.CancelFunc
	done   chan struct{}
	src    LevelSource
}

// New returns a Tracker with the default threshold, silence span and interval.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		threshold:  DefaultThresholdDB,
		minSilence: DefaultMinSilence,
		interval:   DefaultInterval,
		now:        time.Now,
		logger:     slog.Default(),
		lastLevel:  -200,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Sample feeds one level measurement taken at now.
func (t *Tracker) Sample(db float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return
	}
	t.lastLevel = db
	if db > t.threshold {
		if t.stats.SpeechStart.IsZero() {
			t.stats.SpeechStart = now
		}
		t.lastVoice = now
		t.silenceStart = time.Time{}
		return
	}
	if t.silenceStart.IsZero() {
		t.silenceStart = now
		return
	}
	span := now.Sub(t.silenceStart)
	if span > t.minSilence && !t.lastVoice.IsZero() {
		t.stats.CumulativeSilentMs += span.Milliseconds()
		// Clearing lastVoice charges each span once.
		t.lastVoice = time.Time{}
	}
}

// Run starts sampling src on a ticker until ctx ends or Stop is called.
func (t *Tracker) Run(ctx context.Context, src LevelSource) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.src = src
	go t.loop(ctx, src, done)
	return nil
}

func (t *Tracker) loop(ctx context.Context, src LevelSource, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db, err := src.Level()
			if err != nil {
				t.logger.Debug("level sample failed", "err", err)
				continue
			}
			t.Sample(db, t.now())
		}
	}
}

// Stop ends the sampling loop and closes the source when it is an io.Closer.
// Calling Stop on a stopped tracker is a no-op.
func (t *Tracker) Stop() error {
	t.mu.Lock()
	cancel, done, src := t.cancel, t.done, t.src
	t.cancel, t.done, t.src = nil, nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Running reports whether the sampling loop is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Freeze stops sampling and returns the final stats. SpeechEnd is set to now
// when no end was recorded. Later samples are ignored.
func (t *Tracker) Freeze(now time.Time) model.VoiceActivityStats {
	if err := t.Stop(); err != nil {
		t.logger.Warn("failed to release level source", "err", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.frozen {
		if t.stats.SpeechEnd.IsZero() {
			t.stats.SpeechEnd = now
		}
		t.frozen = true
	}
	return t.stats
}

// Snapshot returns a copy of the live stats.
func (t *Tracker) Snapshot() model.VoiceActivityStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Level returns the most recent sampled level in dB.
func (t *Tracker) Level() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastLevel
}

// Reset clears the accumulated stats for a new attempt.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = model.VoiceActivityStats{}
	t.lastVoice = time.Time{}
	t.silenceStart = time.Time{}
	t.lastLevel = -200
	t.frozen = false
}
