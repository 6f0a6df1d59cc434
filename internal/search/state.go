package search

// State tracks a single document request's progress through the portal.
// Terminal states are StateDownloaded and StateFailed.
type State int

const (
	StateIdle State = iota
	StateNavigated
	StateCodeEntered
	StateCaptchaSubmitted
	StateResultReceived
	StateDownloaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNavigated:
		return "navigated"
	case StateCodeEntered:
		return "code_entered"
	case StateCaptchaSubmitted:
		return "captcha_submitted"
	case StateResultReceived:
		return "result_received"
	case StateDownloaded:
		return "downloaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDownloaded || s == StateFailed
}

// SolverMode selects how captcha answers are produced.
type SolverMode int

const (
	ModeAI SolverMode = iota
	ModeManual
)

func (m SolverMode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "ai"
}

// RetryContext carries the attempt budget and the sticky solver mode for one
// document request. Once downgraded to manual, the mode stays manual for the
// remainder of the request; the next request starts fresh.
type RetryContext struct {
	Attempt     int
	MaxAttempts int
	Mode        SolverMode
}

// NewRetryContext builds a RetryContext starting in AI mode when a credential
// is available, manual otherwise.
func NewRetryContext(aiAvailable bool) *RetryContext {
	mode := ModeManual
	if aiAvailable {
		mode = ModeAI
	}
	return &RetryContext{MaxAttempts: 3, Mode: mode}
}

// ForceManual downgrades the solver mode for the rest of this request.
func (rc *RetryContext) ForceManual() {
	rc.Mode = ModeManual
}

// Exhausted reports whether the attempt budget is spent.
func (rc *RetryContext) Exhausted() bool {
	return rc.Attempt >= rc.MaxAttempts
}
