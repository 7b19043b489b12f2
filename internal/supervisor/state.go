// Package supervisor keeps the bot process alive across crashes, with
// exponential backoff between restart attempts.
package supervisor

// State represents the current state of the supervised bot.
type State int

const (
	// StateCreated is the initial state before the bot has started.
	StateCreated State = iota

	// StateStarting indicates the bot process is being spawned.
	StateStarting

	// StateRunning indicates the bot process is actively running.
	StateRunning

	// StateBackoff indicates the supervisor is waiting before a restart.
	StateBackoff

	// StateStopped indicates supervision has ended.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true if the bot is running or about to run again.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateBackoff
}

// IsTerminal returns true if supervision has ended.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
