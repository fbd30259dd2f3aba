package session

// State is a phase of the practice session.
type State int

// Session states.
const (
	Idle State = iota
	Listening
	Scoring
	Feedback
	Ended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Scoring:
		return "scoring"
	case Feedback:
		return "feedback"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}
