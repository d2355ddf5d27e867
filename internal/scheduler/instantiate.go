package scheduler

import (
	"context"

	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/task"
)

// handleInstantiate implements spec.md §4.8 Instantiate(tries).
func (s *Scheduler) handleInstantiate(ctx context.Context, t task.Task) {
	tries := t.Type.Tries
	key := t.ActionObject

	if tries >= InstantiateMaxTries {
		// Silent termination: the Node remains stuck in Registering (spec.md
		// §9 open question #3, preserved as specified). Only observability
		// changes here, never behavior.
		if n, ok := s.registry.GetOrNone(key); ok {
			s.events.Stuck(ctx, key, n.ID)
		}
		s.logger.Warn("instantiate retries exhausted, abandoning node", "key", key, "tries", tries)
		return
	}

	n, ok := s.registry.GetOrNone(key)
	if !ok {
		s.requeue(task.Dismiss, 0, key, dismissSoonMillis)
		return
	}

	if _, err := s.ops.ProbeHealth(ctx, n.ID); err != nil {
		s.logger.Debug("instantiate health probe failed, retrying", "key", key, "id", n.ID, "tries", tries, "error", err)
		s.requeue(task.Instantiate, tries+1, key, RetryBackoffMillis)
		return
	}

	if err := s.store.InsertServer(ctx, n); err != nil {
		s.logger.Debug("instantiate store insert failed, retrying", "key", key, "id", n.ID, "tries", tries, "error", err)
		s.requeue(task.Instantiate, tries+1, key, RetryBackoffMillis)
		return
	}

	s.registry.Mutate(key, func(n meshnode.Node) meshnode.Node {
		n.State = meshnode.Online
		return n
	})
	s.events.Online(ctx, key, n.ID)
	s.logger.Info("node instantiated", "key", key, "id", n.ID)

	s.requeue(task.CheckStatus, 0, key, HealthIntervalMillis)
}
