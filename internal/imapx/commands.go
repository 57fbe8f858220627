package imapx

// ConnState is the connection's position in the IMAP session lifecycle.
type ConnState int

const (
	// StateNotAuthenticated is the state after the greeting, before LOGIN.
	StateNotAuthenticated ConnState = iota

	// StateAuthenticated is the state after a successful LOGIN.
	StateAuthenticated
)

// baselineCommands is the set of commands every client starts out allowed
// to send, mapped to the connection states they are valid in. Extension
// commands such as NOTIFY are not listed; callers register them explicitly
// on the client instance that needs them.
func baselineCommands() map[string][]ConnState {
	return map[string][]ConnState{
		"CAPABILITY": {StateNotAuthenticated, StateAuthenticated},
		"NOOP":       {StateNotAuthenticated, StateAuthenticated},
		"LOGOUT":     {StateNotAuthenticated, StateAuthenticated},
		"STARTTLS":   {StateNotAuthenticated},
		"LOGIN":      {StateNotAuthenticated},
	}
}
