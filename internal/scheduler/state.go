package scheduler

// State is the lifecycle state of a refresh scheduler.
type State string

const (
	// StateIdle renders nothing: the scheduler was never eligible to poll.
	StateIdle State = "IDLE"
	// StatePolling fetches on a fixed cadence.
	StatePolling State = "POLLING"
	// StateSettled means a one-shot history load finished without live updates.
	StateSettled State = "SETTLED"
	// StateTerminated is the normal exit after a terminal snapshot.
	StateTerminated State = "TERMINATED"
	// StateStopped follows teardown from any other state.
	StateStopped State = "STOPPED"
)

// Stats counts fetch activity of one scheduler.
type Stats struct {
	Fetches int
	Applied int
	Errors  int
}
