package scheduler

import (
	"context"

	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/task"
	"github.com/reseda/meshd/internal/telemetry"
)

// handlePurge implements spec.md §4.8 Purge. It never retries: failures in
// the best-effort DNS/cert teardown are logged and swallowed (spec.md §7
// BestEffort).
func (s *Scheduler) handlePurge(ctx context.Context, t task.Task) {
	key := t.ActionObject

	n, ok := s.registry.GetOrNone(key)
	if !ok {
		return
	}

	if n.State == meshnode.Online || n.State == meshnode.Registering {
		// The node recovered (or never finished coming up); purge is a
		// no-op, per invariant 4 (spec.md §3).
		s.logger.Debug("purge skipped, node is no longer offline", "key", key, "id", n.ID, "state", n.State)
		return
	}

	if err := s.ops.DeleteDNS(ctx, n.RecordID); err != nil {
		s.logger.Warn("purge: deleting proxied DNS record failed", "key", key, "id", n.ID, "record_id", n.RecordID, "error", err)
	}
	if err := s.ops.DeleteDNS(ctx, n.RecordDNSID); err != nil {
		s.logger.Warn("purge: deleting dns-only record failed", "key", key, "id", n.ID, "record_id", n.RecordDNSID, "error", err)
	}
	if err := s.ops.RevokeCert(ctx, n.CertID); err != nil {
		s.logger.Warn("purge: revoking certificate failed", "key", key, "id", n.ID, "cert_id", n.CertID, "error", err)
	}

	s.registry.Remove(key)
	s.events.Purged(ctx, key, n.ID)
	s.notify.NodePurged(ctx, n.ID, n.IP)
	telemetry.NodesPurgedTotal.Inc()
	s.logger.Info("node purged", "key", key, "id", n.ID)
}
