package job

// State represents the lifecycle state of a Runner.
type State int

const (
	// StateIdle is the state before a command is spawned, and between commands.
	StateIdle State = iota

	// StateRunning indicates a command's process is live.
	StateRunning

	// StateSucceeded indicates the last command exited with status 0.
	StateSucceeded

	// StateFailed indicates the last command could not be spawned or exited
	// abnormally.
	StateFailed

	// StateDone is reached once the whole sequence has finished or aborted.
	StateDone
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsActive returns true while a command sequence is in progress.
func (s State) IsActive() bool {
	return s == StateRunning || s == StateSucceeded || s == StateFailed
}

// IsTerminal returns true once the sequence has ended.
func (s State) IsTerminal() bool {
	return s == StateDone
}
