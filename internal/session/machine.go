// Package session drives one practice session through its attempt lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/verte-zerg/readaloud/internal/assess"
	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/recognize"
	"github.com/verte-zerg/readaloud/internal/vad"
)

// DefaultTimeout bounds a single Listening phase.
const DefaultTimeout = 45 * time.Second

// AudioSession is an acquired microphone plus its analysis buffer.
type AudioSession interface {
	recognize.Stream
	Close() error
	Live() bool
}

// Microphone acquires audio sessions.
type Microphone interface {
	Acquire(ctx context.Context) (AudioSession, error)
}

// MicrophoneFunc adapts a function to Microphone.
type MicrophoneFunc func(ctx context.Context) (AudioSession, error)

// Acquire implements Microphone.
func (f MicrophoneFunc) Acquire(ctx context.Context) (AudioSession, error) { return f(ctx) }

// Recognizer starts a recognition on a live stream.
type Recognizer interface {
	Start(ctx context.Context, stream recognize.Stream, lang model.Language) (recognize.Recognition, error)
}

// Persister stores completed attempts.
type Persister interface {
	SaveAttempt(ctx context.Context, rec model.AttemptRecord) error
}

// Config wires a Machine.
type Config struct {
	Microphone Microphone
	Recognizer Recognizer
	// Persister may be nil, in which case nothing is stored.
	Persister Persister
	LearnerID string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// PersistEachAttempt stores every completed report, not only the last one.
	PersistEachAttempt bool
	TrackerOptions     []vad.Option
	Logger             *slog.Logger
	Now                func() time.Time
}

// Snapshot is an observable view of the machine.
type Snapshot struct {
	State      State
	CardIndex  int
	Expected   model.ExpectedUtterance
	Stats      model.VoiceActivityStats
	LevelDB    float64
	Transcript model.TranscriptionResult
	Report     *model.ScoreReport
	Alignment  []model.WordAlignmentEntry
	Feedback   FeedbackKind
	Message    string
	// Err holds the underlying cause of a feedback, if any.
	Err error
}

type attempt struct {
	gen      uint64
	card     int
	expected model.ExpectedUtterance

	acquiring bool
	audio     AudioSession
	tracker   *vad.Tracker
	rec       recognize.Recognition
	timer     *time.Timer
	cancel    context.CancelFunc
	// torn is set once teardown has captured the resources above.
	torn bool

	once sync.Once
}

type completed struct {
	record model.AttemptRecord
	saved  bool
}

// Machine is the session state machine. All methods are safe for concurrent use.
type Machine struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	gen      uint64
	current  *attempt
	card     int
	expected model.ExpectedUtterance
	result   assess.Result
	report   *model.ScoreReport
	trans    model.TranscriptionResult
	feedback FeedbackKind
	cause    error
	latest   *completed

	subs   map[int]chan Snapshot
	nextID int
}

// New returns an idle Machine.
func New(cfg Config) (*Machine, error) {
	if cfg.Microphone == nil {
		return nil, errors.New("session: microphone is required")
	}
	if cfg.Recognizer == nil {
		return nil, errors.New("session: recognizer is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	m := &Machine{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
		subs:   make(map[int]chan Snapshot),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// StartAttempt begins listening for expected on card cardIndex.
// Starting from Feedback first resets the previous attempt. Recoverable
// failures are reported through Snapshot feedback, not the returned error.
func (m *Machine) StartAttempt(ctx context.Context, cardIndex int, expected model.ExpectedUtterance) error {
	m.mu.Lock()
	switch {
	case m.state == Ended:
		m.mu.Unlock()
		return ErrEnded
	case m.current != nil || m.state == Listening || m.state == Scoring:
		m.mu.Unlock()
		return ErrBusy
	}
	m.clearAttemptLocked()
	m.gen++
	a := &attempt{gen: m.gen, card: cardIndex, expected: expected, acquiring: true}
	m.current = a
	m.state = Listening
	m.card = cardIndex
	m.expected = expected
	m.mu.Unlock()
	m.notify()

	audio, err := m.cfg.Microphone.Acquire(ctx)

	m.mu.Lock()
	a.acquiring = false
	if a.gen != m.gen {
		// Reset or stop won the race; this attempt owns the release.
		if m.current == a {
			m.current = nil
		}
		m.mu.Unlock()
		if audio != nil {
			m.closeAudio(audio)
		}
		return nil
	}
	if err != nil {
		m.current = nil
		m.state = Feedback
		m.feedback = FeedbackPermissionDenied
		m.cause = err
		m.mu.Unlock()
		m.logger.Warn("microphone unavailable", "err", err)
		m.notify()
		return nil
	}
	a.audio = audio
	m.mu.Unlock()

	if err := m.listen(ctx, a); err != nil {
		m.teardown(a)
		m.mu.Lock()
		stale := a.gen != m.gen
		if m.current == a {
			m.current = nil
		}
		if !stale {
			m.state = Feedback
			m.feedback = FeedbackRecognitionError
			m.cause = err
		}
		m.mu.Unlock()
		m.logger.Warn("failed to start recognition", "err", err)
		m.notify()
	}
	return nil
}

// listen starts the tracker, the recognizer and the timeout for a. A reset
// or stop that lands while it runs leaves nothing running.
func (m *Machine) listen(ctx context.Context, a *attempt) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tracker := vad.New(append([]vad.Option{vad.WithLogger(m.logger)}, m.cfg.TrackerOptions...)...)

	m.mu.Lock()
	if a.torn {
		m.mu.Unlock()
		cancel()
		return nil
	}
	a.cancel = cancel
	a.tracker = tracker
	m.mu.Unlock()

	if err := tracker.Run(runCtx, levelOnly{a.audio}); err != nil {
		return fmt.Errorf("failed to start voice activity tracker: %w", err)
	}
	if m.stale(a) {
		m.abandon(a, tracker, cancel, nil)
		return nil
	}
	rec, err := m.cfg.Recognizer.Start(runCtx, a.audio, a.expected.Language)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if a.torn || a.gen != m.gen {
		m.mu.Unlock()
		m.abandon(a, tracker, cancel, rec)
		return nil
	}
	a.rec = rec
	a.timer = time.AfterFunc(m.cfg.Timeout, func() {
		m.complete(a, recognize.Result{NoSpeech: true, Err: errTimeout})
	})
	m.mu.Unlock()

	go func() {
		select {
		case res, ok := <-rec.Result():
			if !ok {
				res = recognize.Result{NoSpeech: true}
			}
			m.complete(a, res)
		case <-runCtx.Done():
		}
	}()
	return nil
}

// abandon stops what listen started for a after a lost race with teardown.
func (m *Machine) abandon(a *attempt, tracker *vad.Tracker, cancel context.CancelFunc, rec recognize.Recognition) {
	if rec != nil {
		rec.Stop()
	}
	if err := tracker.Stop(); err != nil {
		m.logger.Debug("tracker stop", "err", err)
	}
	cancel()
	m.teardown(a)
}

// stale reports whether a reset or stop has overtaken a.
func (m *Machine) stale(a *attempt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return a.torn || a.gen != m.gen
}

var errTimeout = errors.New("listening timed out")

// complete moves a from Listening through Scoring to Feedback.
func (m *Machine) complete(a *attempt, res recognize.Result) {
	m.mu.Lock()
	if a.gen != m.gen || m.state != Listening || m.current != a {
		m.mu.Unlock()
		return
	}
	m.state = Scoring
	tracker := a.tracker
	m.mu.Unlock()
	m.notify()

	stats := tracker.Freeze(m.now())
	m.teardown(a)

	var (
		kind   FeedbackKind
		cause  error
		result assess.Result
	)
	switch {
	case res.Err != nil && !errors.Is(res.Err, errTimeout):
		kind, cause = FeedbackRecognitionError, res.Err
	case res.NoSpeech:
		kind, cause = FeedbackNoSpeech, res.Err
	default:
		var err error
		result, err = assess.Evaluate(a.expected, res.Transcript, stats)
		if err != nil {
			kind, cause = FeedbackNoSpeech, err
		}
	}

	m.mu.Lock()
	if m.current == a {
		m.current = nil
	}
	if a.gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.state = Feedback
	m.feedback = kind
	m.cause = cause
	m.trans = res.Transcript
	var toSave *completed
	if kind == FeedbackNone {
		report := result.Report
		m.result = result
		m.report = &report
		m.latest = &completed{record: model.AttemptRecord{
			LearnerID:    m.cfg.LearnerID,
			RecordedAt:   m.now(),
			CardIndex:    a.card,
			ExpectedText: a.expected.Text,
			Language:     a.expected.Language,
			Confidence:   result.Confidence,
			Report:       report,
			Words:        append([]model.WordAlignmentEntry(nil), result.Alignment.Entries...),
		}}
		if m.cfg.PersistEachAttempt {
			toSave = m.latest
		}
	}
	m.mu.Unlock()

	if kind != FeedbackNone {
		m.logger.Info("attempt finished without report", "card", a.card, "feedback", kind.String(), "err", cause)
	} else {
		m.logger.Info("attempt scored",
			"card", a.card,
			"average", result.Report.AverageScore,
			"label", string(result.Report.AverageLabel),
		)
	}
	if toSave != nil {
		if err := m.save(context.Background(), toSave); err != nil {
			m.logger.Warn("failed to persist attempt", "err", err)
		}
	}
	m.notify()
}

// Reset returns to Idle for a card change. A live attempt is cancelled.
func (m *Machine) Reset() error {
	m.mu.Lock()
	if m.state == Ended {
		m.mu.Unlock()
		return ErrEnded
	}
	m.gen++
	a := m.current
	m.state = Idle
	m.clearAttemptLocked()
	m.mu.Unlock()

	if a != nil {
		m.release(a)
	}
	m.notify()
	return nil
}

// StopAttempt ends the session from any state, tears down a live attempt and
// persists the latest report. It returns that report, or nil when none was
// produced. Calling it again returns the same report without saving twice.
func (m *Machine) StopAttempt(ctx context.Context) (*model.ScoreReport, error) {
	m.mu.Lock()
	alreadyEnded := m.state == Ended
	m.gen++
	a := m.current
	m.state = Ended
	latest := m.latest
	m.mu.Unlock()

	if a != nil {
		m.release(a)
	}
	if !alreadyEnded {
		m.notify()
	}
	if latest == nil {
		return nil, nil
	}
	report := latest.record.Report
	if err := m.save(ctx, latest); err != nil {
		return &report, err
	}
	return &report, nil
}

// release tears down a cancelled attempt unless its acquisition is still in
// flight, in which case StartAttempt releases it.
func (m *Machine) release(a *attempt) {
	m.mu.Lock()
	acquiring := a.acquiring
	m.mu.Unlock()
	if acquiring {
		return
	}
	m.teardown(a)
	m.mu.Lock()
	if m.current == a {
		m.current = nil
	}
	m.mu.Unlock()
}

// teardown stops every resource of a exactly once.
func (m *Machine) teardown(a *attempt) {
	a.once.Do(func() {
		m.mu.Lock()
		timer, rec, tracker, cancel, audio := a.timer, a.rec, a.tracker, a.cancel, a.audio
		a.torn = true
		m.mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		if rec != nil {
			rec.Stop()
		}
		if tracker != nil {
			if err := tracker.Stop(); err != nil {
				m.logger.Debug("tracker stop", "err", err)
			}
		}
		if cancel != nil {
			cancel()
		}
		if audio != nil {
			m.closeAudio(audio)
		}
	})
}

func (m *Machine) closeAudio(audio AudioSession) {
	if err := audio.Close(); err != nil {
		m.logger.Warn("failed to release microphone", "err", err)
	}
}

func (m *Machine) save(ctx context.Context, c *completed) error {
	if m.cfg.Persister == nil {
		return nil
	}
	m.mu.Lock()
	if c.saved {
		m.mu.Unlock()
		return nil
	}
	c.saved = true
	rec := c.record
	m.mu.Unlock()

	if err := m.cfg.Persister.SaveAttempt(ctx, rec); err != nil {
		m.mu.Lock()
		c.saved = false
		m.mu.Unlock()
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	return nil
}

func (m *Machine) clearAttemptLocked() {
	m.result = assess.Result{}
	m.report = nil
	m.trans = model.TranscriptionResult{}
	m.feedback = FeedbackNone
	m.cause = nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the observable state, including live stats while listening.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      m.state,
		CardIndex:  m.card,
		Expected:   m.expected,
		Transcript: m.trans,
		Feedback:   m.feedback,
		Message:    m.feedback.Message(),
		Err:        m.cause,
		LevelDB:    -200,
	}
	if m.report != nil {
		r := *m.report
		s.Report = &r
		s.Alignment = append([]model.WordAlignmentEntry(nil), m.result.Alignment.Entries...)
	}
	if a := m.current; a != nil && a.tracker != nil {
		s.Stats = a.tracker.Snapshot()
		s.LevelDB = a.tracker.Level()
	}
	return s
}

// Subscribe returns a channel of snapshots sent on every transition. Slow
// readers only miss intermediate snapshots; the newest one is kept.
func (m *Machine) Subscribe() (<-chan Snapshot, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan Snapshot, 1)
	m.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(c)
			}
		})
	}
}

func (m *Machine) notify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// levelOnly hides Close so the tracker does not release the shared stream.
type levelOnly struct {
	src vad.LevelSource
}

func (l levelOnly) Level() (float64, error) { return l.src.Level() }
