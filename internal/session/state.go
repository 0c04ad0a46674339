package session

// State is the lifecycle state of a camera session.
type State int32

// Session states.
const (
	StateUninitialized State = iota
	StateOpening
	StateOpened
	StateConfiguringSession
	StateSessionReady
	StatePreviewRunning
	StateCapturing
	StateClosing
	StateClosed
	StateFaulted
)

var stateNames = [...]string{
	StateUninitialized:      "uninitialized",
	StateOpening:            "opening",
	StateOpened:             "opened",
	StateConfiguringSession: "configuring_session",
	StateSessionReady:       "session_ready",
	StatePreviewRunning:     "preview_running",
	StateCapturing:          "capturing",
	StateClosing:            "closing",
	StateClosed:             "closed",
	StateFaulted:            "faulted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Ready reports whether the capture session is configured and usable.
func (s State) Ready() bool {
	return s == StateSessionReady || s == StatePreviewRunning || s == StateCapturing
}

// configuring reports whether a preview request has to wait.
func (s State) configuring() bool {
	return s == StateOpening || s == StateOpened || s == StateConfiguringSession
}
