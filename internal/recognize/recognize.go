// Package recognize turns a captured attempt into a transcript.
package recognize

import (
	"context"
	"errors"

	"github.com/verte-zerg/readaloud/internal/model"
)

// ErrStopped is delivered when a recognition is aborted by Stop.
var ErrStopped = errors.New("recognition stopped")

// Stream is the audio a recognizer listens to.
type Stream interface {
	Level() (float64, error)
	PCM() []float32
	SampleRate() int
}

// Result is the single outcome of a recognition.
type Result struct {
	Transcript model.TranscriptionResult
	// NoSpeech is set when the engine finished without hearing any words.
	NoSpeech bool
	Err      error
}

// Recognition is one in-flight listen-and-transcribe run.
type Recognition interface {
	// Result delivers exactly one Result.
	Result() <-chan Result
	// Stop aborts the run. Safe to call more than once.
	Stop()
}

// Recognizer starts recognitions.
type Recognizer interface {
	Start(ctx context.Context, stream Stream, lang model.Language) (Recognition, error)
}
