package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/verte-zerg/readaloud/internal/model"
)

// Defaults used by NewWhisper.
const (
	DefaultURL             = "http://127.0.0.1:8000"
	DefaultEndpointSilence = 800 * time.Millisecond
	DefaultMaxListen       = 30 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultThresholdDB     = -50.0
)

const (
	transcriptionsPath = "/v1/audio/transcriptions"
	pollInterval       = 20 * time.Millisecond
)

var _ Recognizer = (*Whisper)(nil)

// Option configures a Whisper recognizer.
type Option func(*Whisper)

// WithModel sets the model form field; empty lets the server choose.
func WithModel(name string) Option {
	return func(w *Whisper) { w.model = name }
}

// WithEndpointSilence sets how long silence after speech ends the utterance.
func WithEndpointSilence(d time.Duration) Option {
	return func(w *Whisper) {
		if d > 0 {
			w.endpointSilence = d
		}
	}
}

// WithMaxListen caps how long a recognition listens before transcribing.
func WithMaxListen(d time.Duration) Option {
	return func(w *Whisper) {
		if d > 0 {
			w.maxListen = d
		}
	}
}

// WithThreshold sets the speech level in dBFS.
func WithThreshold(db float64) Option {
	return func(w *Whisper) { w.threshold = db }
}

// WithPollInterval sets how often the stream level is checked.
func WithPollInterval(d time.Duration) Option {
	return func(w *Whisper) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Whisper) {
		if c != nil {
			w.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Whisper) {
		if l != nil {
			w.logger = l
		}
	}
}

// Whisper transcribes through an OpenAI-compatible transcription server.
// It endpoints on the stream level and sends the whole utterance in one request.
type Whisper struct {
	url             string
	model           string
	endpointSilence time.Duration
	maxListen       time.Duration
	threshold       float64
	interval        time.Duration
	client          *http.Client
	logger          *slog.Logger
}

// NewWhisper returns a recognizer that posts to serverURL.
func NewWhisper(serverURL string, opts ...Option) *Whisper {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	w := &Whisper{
		url:             strings.TrimRight(serverURL, "/"),
		endpointSilence: DefaultEndpointSilence,
		maxListen:       DefaultMaxListen,
		threshold:       DefaultThresholdDB,
		interval:        pollInterval,
		client:          &http.Client{Timeout: DefaultRequestTimeout},
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins listening on stream.
func (w *Whisper) Start(ctx context.Context, stream Stream, lang model.Language) (Recognition, error) {
	if stream == nil {
		return nil, fmt.Errorf("failed to start recognition: nil stream")
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, result: make(chan Result, 1)}
	go func() {
		defer cancel()
		r.deliver(w.listen(runCtx, stream, lang))
	}()
	return r, nil
}

func (w *Whisper) listen(ctx context.Context, stream Stream, lang model.Language) Result {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	started := time.Now()
	var (
		heard       bool
		silentSince time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return Result{Err: ErrStopped}
		case now := <-ticker.C:
			db, err := stream.Level()
			if err != nil {
				return Result{Err: fmt.Errorf("failed to read audio level: %w", err)}
			}
			switch {
			case db > w.threshold:
				heard = true
				silentSince = time.Time{}
			case heard && silentSince.IsZero():
				silentSince = now
			}
			endpointed := heard && !silentSince.IsZero() && now.Sub(silentSince) >= w.endpointSilence
			if !endpointed && now.Sub(started) < w.maxListen {
				continue
			}
			if !heard {
				return Result{NoSpeech: true}
			}
			transcript, err := w.Transcribe(ctx, stream.PCM(), stream.SampleRate(), lang)
			if err != nil {
				if ctx.Err() != nil {
					return Result{Err: ErrStopped}
				}
				return Result{Err: err}
			}
			if strings.TrimSpace(transcript.Text) == "" {
				return Result{NoSpeech: true}
			}
			return Result{Transcript: transcript}
		}
	}
}

type verboseResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

// Transcribe posts samples as a WAV upload and parses the verbose_json reply.
func (w *Whisper) Transcribe(ctx context.Context, samples []float32, sampleRate int, lang model.Language) (model.TranscriptionResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "attempt.wav")
	if err != nil {
		return model.TranscriptionResult{}, fmt.Errorf("failed to create form file: %w", err)
	}
	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		return model.TranscriptionResult{}, err
	}
	if _, err := fw.Write(data); err != nil {
		return model.TranscriptionResult{}, fmt.Errorf("failed to write wav data: %w", err)
	}
	fields := [][2]string{
		{"language", languageCode(lang)},
		{"response_format", "verbose_json"},
		{"temperature", "0"},
	}
	if w.model != "" {
		fields = append(fields, [2]string{"model", w.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return model.TranscriptionResult{}, fmt.Errorf("failed to write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return model.TranscriptionResult{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url+transcriptionsPath, &body)
	if err != nil {
		return model.TranscriptionResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	started := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return model.TranscriptionResult{}, fmt.Errorf("failed to reach transcription server: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort close; the response has been consumed.
			_ = cerr
		}
	}()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return model.TranscriptionResult{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.TranscriptionResult{}, fmt.Errorf("transcription server error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var parsed verboseResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return model.TranscriptionResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	result := model.TranscriptionResult{
		Text:          strings.TrimSpace(parsed.Text),
		Confidence:    confidence(parsed),
		HasConfidence: true,
	}
	w.logger.Debug("transcribed attempt",
		"samples", len(samples),
		"elapsed", time.Since(started),
		"confidence", result.Confidence,
	)
	return result, nil
}

// confidence is exp of the mean segment avg_logprob, or the default without segments.
func confidence(resp verboseResponse) float64 {
	if len(resp.Segments) == 0 {
		return model.DefaultConfidence
	}
	var sum float64
	for _, s := range resp.Segments {
		sum += s.AvgLogprob
	}
	c := math.Exp(sum / float64(len(resp.Segments)))
	if math.IsNaN(c) || c <= 0 {
		return model.DefaultConfidence
	}
	return math.Min(c, 1)
}

// languageCode maps to the ISO-639-1 codes Whisper understands.
func languageCode(lang model.Language) string {
	if lang == model.Filipino {
		return "tl"
	}
	return "en"
}

type run struct {
	cancel context.CancelFunc
	result chan Result
	once   sync.Once
}

func (r *run) deliver(res Result) {
	r.result <- res
	close(r.result)
}

func (r *run) Result() <-chan Result {
	return r.result
}

func (r *run) Stop() {
	r.once.Do(r.cancel)
}
