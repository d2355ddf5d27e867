// Package scheduler implements the cooperative task loop and the four task
// handlers that together form the node lifecycle state machine (spec.md
// §4.7, §4.8), grounded on the teacher's pkg/escalation.Engine ticker loop.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/reseda/meshd/internal/clock"
	"github.com/reseda/meshd/internal/events"
	"github.com/reseda/meshd/internal/externalops"
	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/notify"
	"github.com/reseda/meshd/internal/store"
	"github.com/reseda/meshd/internal/task"
	"github.com/reseda/meshd/internal/telemetry"
)

// Scheduler is the single cooperative loop of spec.md §4.7: it pops due
// tasks from the queue and dispatches them to the matching handler,
// synchronously, one at a time. Handlers may suspend for I/O; while one
// runs, no other task is dequeued. This removes the need for per-node
// locking beyond the registry's own mutex (spec.md §5).
type Scheduler struct {
	registry *meshnode.Registry
	queue    *task.Queue
	ops      externalops.Ops
	store    store.Store
	clock    clock.Clock
	logger   *slog.Logger

	// events and notify are best-effort, optional observability sinks; both
	// tolerate a nil/disabled underlying client (spec.md never depends on
	// them for correctness).
	events *events.Publisher
	notify *notify.Notifier
}

// New creates a Scheduler. pub and ntf may be nil; wrap them in a disabled
// events.Publisher / notify.Notifier rather than passing untyped nils where
// possible, but a literal nil is also safe for every method here.
func New(registry *meshnode.Registry, queue *task.Queue, ops externalops.Ops, st store.Store, clk clock.Clock, logger *slog.Logger, pub *events.Publisher, ntf *notify.Notifier) *Scheduler {
	return &Scheduler{
		registry: registry,
		queue:    queue,
		ops:      ops,
		store:    st,
		clock:    clk,
		logger:   logger,
		events:   pub,
		notify:   ntf,
	}
}

// Run executes the scheduler loop until ctx is cancelled (spec.md §4.7).
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		default:
		}

		t, ok := s.queue.PopFront()
		if !ok {
			s.clock.Sleep(ctx, pollIdleMillis*time.Millisecond)
			continue
		}

		now := s.clock.NowMillis()
		if now < t.ExecAt {
			s.queue.PushBack(t)
			delta := t.ExecAt - now
			if min, ok := s.queue.MinDueTime(); ok {
				if d := min - now; d < delta {
					delta = d
				}
			}
			if delta > pollMaxMillis {
				delta = pollMaxMillis
			}
			if delta < 0 {
				delta = 0
			}
			s.clock.Sleep(ctx, time.Duration(delta)*time.Millisecond)
			continue
		}

		s.dispatch(ctx, t)
	}
}

// dispatch invokes the handler matching t's kind (spec.md §4.7).
func (s *Scheduler) dispatch(ctx context.Context, t task.Task) {
	start := time.Now()
	switch t.Type.Kind {
	case task.Instantiate:
		s.handleInstantiate(ctx, t)
	case task.CheckStatus:
		s.handleCheckStatus(ctx, t)
	case task.Dismiss:
		s.handleDismiss(ctx, t)
	case task.Purge:
		s.handlePurge(ctx, t)
	default:
		s.logger.Error("unknown task kind dispatched", "kind", t.Type.Kind, "action_object", t.ActionObject)
		return
	}
	telemetry.TaskHandlerDuration.WithLabelValues(t.Type.Kind.String()).Observe(time.Since(start).Seconds())
	s.refreshStateGauge()
}

// requeue is a small helper shared by every handler: it enqueues a follow-up
// task of the given kind/tries against the same actionObject, due delayMs
// from now.
func (s *Scheduler) requeue(kind task.Kind, tries int, actionObject string, delayMs int64) {
	s.queue.PushBack(task.Task{
		Type:         task.Type{Kind: kind, Tries: tries},
		ActionObject: actionObject,
		ExecAt:       s.clock.NowMillis() + delayMs,
	})
	telemetry.TasksEnqueuedTotal.WithLabelValues(kind.String()).Inc()
}

// refreshStateGauge recomputes the nodes-by-state gauge after a dispatch.
// Cheap enough to run unconditionally given the expected task rate (spec.md
// §5: at most one task per node per second).
func (s *Scheduler) refreshStateGauge() {
	counts := map[meshnode.State]int{}
	s.registry.Range(func(n meshnode.Node) {
		counts[n.State]++
	})
	telemetry.NodesByState.WithLabelValues(string(meshnode.Registering)).Set(float64(counts[meshnode.Registering]))
	telemetry.NodesByState.WithLabelValues(string(meshnode.Online)).Set(float64(counts[meshnode.Online]))
	telemetry.NodesByState.WithLabelValues(string(meshnode.Offline)).Set(float64(counts[meshnode.Offline]))
}
