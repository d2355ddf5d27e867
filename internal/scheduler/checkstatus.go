package scheduler

import (
	"context"

	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/task"
)

// handleCheckStatus implements spec.md §4.8 CheckStatus(tries).
func (s *Scheduler) handleCheckStatus(ctx context.Context, t task.Task) {
	tries := t.Type.Tries
	key := t.ActionObject

	if tries >= CheckStatusMaxTries {
		s.requeue(task.Dismiss, 0, key, dismissSoonMillis)
		return
	}

	n, ok := s.registry.GetOrNone(key)
	if !ok {
		s.requeue(task.Dismiss, 0, key, dismissSoonMillis)
		return
	}

	status, err := s.ops.ProbeHealth(ctx, n.ID)
	next := 0
	if err != nil {
		s.logger.Debug("check-status health probe failed", "key", key, "id", n.ID, "tries", tries, "error", err)
		next = tries + 1
	} else {
		// spec.md §9 open question #4: the probe payload is parsed and
		// logged but not compared against local state, matching the
		// preserved behavior of the source.
		s.logger.Debug("check-status health probe ok", "key", key, "id", n.ID, "status", status.Status, "usage", status.Usage)
		s.registry.Mutate(key, func(n meshnode.Node) meshnode.Node {
			n.State = meshnode.Online
			return n
		})
		s.events.Online(ctx, key, n.ID)
	}

	s.requeue(task.CheckStatus, next, key, HealthIntervalMillis)
}
