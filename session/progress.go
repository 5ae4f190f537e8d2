package session

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCountingDown Phase = "countingDown"
	PhaseRecording    Phase = "recording"
	PhaseAdvancing    Phase = "advancing"
	PhaseComplete     Phase = "complete"
)

// Progress is a snapshot for the host view.
type Progress struct {
	SessionID      string
	Phase          Phase
	CurrentIndex   int
	Total          int
	IsLastQuestion bool
	// Countdown is the lead-in digit while counting down, else 0.
	Countdown int
	// TimeRemaining is nil unless recording a question with a limit.
	TimeRemaining          *int
	HasPlayedOpeningPrompt bool
	// Saved counts answers of this run the sink accepted.
	Saved int
	// Err is the blocking error that returned the session to idle, if any.
	Err error
}
