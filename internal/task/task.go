// Package task implements the delayed-task queue described in spec.md §3,
// §4.5: an ordered, in-memory, not-persisted collection of Task records that
// drives the node lifecycle state machine.
package task

// Kind identifies which state-machine handler a Task dispatches to.
type Kind int

const (
	Instantiate Kind = iota
	CheckStatus
	Dismiss
	Purge
)

func (k Kind) String() string {
	switch k {
	case Instantiate:
		return "instantiate"
	case CheckStatus:
		return "check_status"
	case Dismiss:
		return "dismiss"
	case Purge:
		return "purge"
	default:
		return "unknown"
	}
}

// Type is the tagged TaskType of spec.md §3: the retry counter lives inside
// the variant, so a Purge task can never be constructed with a Tries value
// that means anything (handlers never read Tries for Purge).
type Type struct {
	Kind  Kind
	Tries int
}

// Task is a single unit of deferred work against one Node (spec.md §3).
// ActionObject carries the Node's Key; handlers must re-look-up the Node by
// key on execution rather than carry a reference to it.
type Task struct {
	Type         Type
	ActionObject string
	ExecAt       int64 // epoch milliseconds
}
