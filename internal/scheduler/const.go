package scheduler

// Retry caps and delays for the task handlers (spec.md §4.8). These are the
// only tunables of the state machine; everything else follows from them.
const (
	InstantiateMaxTries  = 6
	CheckStatusMaxTries  = 5
	DismissMaxTries      = 6
	PurgeDelayMillis     = 3_600_000
	RetryBackoffMillis   = 5_000
	HealthIntervalMillis = 1_000

	// RegisterToInstantiateMillis mirrors registrar.RegisterToInstantiateDelayMillis;
	// duplicated here as a constant of the state machine per spec.md §4.8 so
	// this package does not need to import internal/registrar.
	RegisterToInstantiateMillis = 30_000

	// dismissSoonMillis is the short delay used whenever a handler decides a
	// Node is already gone or unreachable and escalates straight to Dismiss.
	dismissSoonMillis = 1_000

	// pollIdleMillis and pollMaxMillis bound the scheduler loop's sleep when
	// the queue is empty or its head is not yet due (spec.md §4.7).
	pollIdleMillis = 100
	pollMaxMillis  = 100
)
