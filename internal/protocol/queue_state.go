package protocol

import "strings"

const (
	QueueStateQueued    = "queued"
	QueueStateStarted   = "started"
	QueueStateFinished  = "finished"
	QueueStateFailed    = "failed"
	QueueStateDeferred  = "deferred"
	QueueStateScheduled = "scheduled"
)

// QueueStates lists every state reported under QueueStats.Queue, in display order.
var QueueStates = []string{
	QueueStateQueued,
	QueueStateStarted,
	QueueStateFinished,
	QueueStateFailed,
	QueueStateDeferred,
	QueueStateScheduled,
}

func NormalizeQueueState(state string) string {
	return strings.ToLower(strings.TrimSpace(state))
}

func IsQueueState(state string) bool {
	switch NormalizeQueueState(state) {
	case QueueStateQueued, QueueStateStarted, QueueStateFinished, QueueStateFailed, QueueStateDeferred, QueueStateScheduled:
		return true
	default:
		return false
	}
}

func IsTerminalQueueState(state string) bool {
	switch NormalizeQueueState(state) {
	case QueueStateFinished, QueueStateFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a job may move from one state to another.
// Terminal jobs never move again; a started job can only finish or fail.
func CanTransition(from, to string) bool {
	from = NormalizeQueueState(from)
	to = NormalizeQueueState(to)
	if !IsQueueState(from) || !IsQueueState(to) || from == to {
		return false
	}
	if IsTerminalQueueState(from) {
		return false
	}
	if from == QueueStateStarted {
		return IsTerminalQueueState(to)
	}
	return true
}

// EmptyQueueCounts returns a map with a zero entry for every known state.
func EmptyQueueCounts() map[string]int64 {
	out := make(map[string]int64, len(QueueStates))
	for _, s := range QueueStates {
		out[s] = 0
	}
	return out
}
