package task

import "github.com/wavemcp/wavemcp/internal/task"

// isValidTransition enforces the INVALID_STATE_TRANSITION rule (e.g. a
// plan cannot jump directly from blocked to completed — it must pass
// through in_progress first). completed is terminal: nothing transitions
// out of it once reached.
func isValidTransition(old, next task.Status) bool {
	if old == next {
		return true
	}
	if old == task.StatusCompleted {
		return false
	}
	switch next {
	case task.StatusCompleted:
		return old == task.StatusInProgress
	case task.StatusInProgress:
		return old == task.StatusToDo || old == task.StatusBlocked
	case task.StatusBlocked:
		return old == task.StatusToDo || old == task.StatusInProgress
	case task.StatusToDo:
		return old == task.StatusInProgress || old == task.StatusBlocked
	default:
		return false
	}
}
