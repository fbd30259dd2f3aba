package vad

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return base.Add(time.Duration(ms) * time.Millisecond)
}

func TestSampleRecordsSpeechStartOnce(t *testing.T) {
	tr := New()
	tr.Sample(-80, at(0))
	tr.Sample(-20, at(16))
	tr.Sample(-10, at(32))
	st := tr.Snapshot()
	if !st.SpeechStart.Equal(at(16)) {
		t.Fatalf("speech start = %v, want %v", st.SpeechStart, at(16))
	}
	if !st.SpeechEnd.IsZero() {
		t.Fatalf("speech end must stay unset while sampling")
	}
}

func TestThresholdIsExclusive(t *testing.T) {
	tr := New()
	tr.Sample(DefaultThresholdDB, at(0))
	if !tr.Snapshot().SpeechStart.IsZero() {
		t.Fatalf("a sample at the threshold counts as silence")
	}
}

func TestSilenceChargedOncePerSpan(t *testing.T) {
	tr := New()
	tr.Sample(-20, at(0))
	tr.Sample(-70, at(100)) // opens span
	tr.Sample(-70, at(250)) // 150ms, not yet charged
	if got := tr.Snapshot().CumulativeSilentMs; got != 0 {
		t.Fatalf("span under 200ms must not be charged, got %d", got)
	}
	tr.Sample(-70, at(350)) // 250ms, charged
	tr.Sample(-70, at(900)) // same span, ignored
	if got := tr.Snapshot().CumulativeSilentMs; got != 250 {
		t.Fatalf("cumulative silence = %d, want 250", got)
	}
	tr.Sample(-20, at(1000)) // voice closes the span
	tr.Sample(-70, at(1100))
	tr.Sample(-70, at(1400))
	if got := tr.Snapshot().CumulativeSilentMs; got != 550 {
		t.Fatalf("cumulative silence = %d, want 550", got)
	}
}

func TestLeadingSilenceIsNotCharged(t *testing.T) {
	tr := New()
	tr.Sample(-70, at(0))
	tr.Sample(-70, at(900))
	if got := tr.Snapshot().CumulativeSilentMs; got != 0 {
		t.Fatalf("silence before any voice must not be charged, got %d", got)
	}
}

func TestFreezeSetsEndAndIgnoresLaterSamples(t *testing.T) {
	tr := New()
	tr.Sample(-20, at(0))
	st := tr.Freeze(at(2000))
	if !st.SpeechEnd.Equal(at(2000)) {
		t.Fatalf("speech end = %v, want %v", st.SpeechEnd, at(2000))
	}
	tr.Sample(-70, at(2100))
	tr.Sample(-70, at(2600))
	if tr.Snapshot() != st {
		t.Fatalf("frozen stats changed: %+v vs %+v", tr.Snapshot(), st)
	}
	if again := tr.Freeze(at(5000)); again != st {
		t.Fatalf("second freeze changed stats")
	}
}

func TestResetClearsStats(t *testing.T) {
	tr := New()
	tr.Sample(-20, at(0))
	tr.Freeze(at(10))
	tr.Reset()
	st := tr.Snapshot()
	if !st.SpeechStart.IsZero() || !st.SpeechEnd.IsZero() || st.CumulativeSilentMs != 0 {
		t.Fatalf("expected empty stats after reset, got %+v", st)
	}
}

type countingSource struct {
	mu     sync.Mutex
	level  float64
	calls  atomic.Int64
	closed atomic.Int64
}

func (s *countingSource) Level() (float64, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level, nil
}

func (s *countingSource) Close() error {
	s.closed.Add(1)
	return nil
}

func TestRunSamplesAndStopIsIdempotent(t *testing.T) {
	src := &countingSource{level: -10}
	tr := New(WithInterval(time.Millisecond))
	if err := tr.Run(context.Background(), src); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := tr.Run(context.Background(), src); err != ErrRunning {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if src.calls.Load() < 3 {
		t.Fatalf("expected the loop to sample the source")
	}
	if err := tr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := tr.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if src.closed.Load() != 1 {
		t.Fatalf("source closed %d times, want 1", src.closed.Load())
	}
	if tr.Running() {
		t.Fatalf("tracker still running after stop")
	}
	if tr.Snapshot().SpeechStart.IsZero() {
		t.Fatalf("expected voiced samples to set speech start")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	src := &countingSource{level: -90}
	tr := New(WithInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	if err := tr.Run(ctx, src); err != nil {
		t.Fatalf("run: %v", err)
	}
	cancel()
	if err := tr.Stop(); err != nil {
		t.Fatalf("stop after cancel: %v", err)
	}
}
