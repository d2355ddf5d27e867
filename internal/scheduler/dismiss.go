package scheduler

import (
	"context"

	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/task"
)

// handleDismiss implements spec.md §4.8 Dismiss(tries).
func (s *Scheduler) handleDismiss(ctx context.Context, t task.Task) {
	tries := t.Type.Tries
	key := t.ActionObject

	if tries >= DismissMaxTries {
		s.logger.Warn("dismiss retries exhausted, abandoning node", "key", key, "tries", tries)
		return
	}

	n, ok := s.registry.GetOrNone(key)
	if !ok {
		// The node is already gone; nothing to dismiss.
		return
	}

	if err := s.store.DeleteServer(ctx, n.ID); err != nil {
		s.logger.Debug("dismiss store delete failed, retrying", "key", key, "id", n.ID, "tries", tries, "error", err)
		s.requeue(task.Dismiss, tries+1, key, RetryBackoffMillis)
		return
	}

	s.registry.Mutate(key, func(n meshnode.Node) meshnode.Node {
		n.State = meshnode.Offline
		return n
	})
	s.events.Offline(ctx, key, n.ID)
	s.notify.NodeDismissed(ctx, n.ID, n.IP)
	s.logger.Info("node dismissed", "key", key, "id", n.ID)

	s.requeue(task.Purge, 0, key, PurgeDelayMillis)
}
