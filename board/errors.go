package board

// DriverConflictError reports that both the replay driver and the
// live message generator were requested. The board plays back a trace
// or synthesizes traffic, never both.
type DriverConflictError struct{}

func (e *DriverConflictError) Error() string {
	return "board: replay and message generation are mutually exclusive"
}
