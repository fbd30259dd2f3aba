package session

import "errors"

var (
	// ErrBusy rejects a new attempt while another one is live or tearing down.
	ErrBusy = errors.New("an attempt is already in progress")
	// ErrEnded rejects operations after StopAttempt.
	ErrEnded = errors.New("session has ended")
)

// FeedbackKind classifies why an attempt finished without a report.
type FeedbackKind int

// Feedback kinds.
const (
	FeedbackNone FeedbackKind = iota
	FeedbackPermissionDenied
	FeedbackNoSpeech
	FeedbackRecognitionError
)

func (k FeedbackKind) String() string {
	switch k {
	case FeedbackPermissionDenied:
		return "permission-denied"
	case FeedbackNoSpeech:
		return "no-speech"
	case FeedbackRecognitionError:
		return "recognition-error"
	default:
		return "none"
	}
}

// Message is the learner-facing text for k.
func (k FeedbackKind) Message() string {
	switch k {
	case FeedbackPermissionDenied:
		return "Microphone access was denied. Allow microphone access and try again."
	case FeedbackNoSpeech:
		return "No speech was detected. Please try again and read the sentence aloud."
	case FeedbackRecognitionError:
		return "Speech recognition failed. Please try again."
	default:
		return ""
	}
}
