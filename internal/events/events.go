// Package events mirrors node lifecycle transitions onto Redis pub/sub, in
// the spirit of the teacher's pkg/escalation PublishAck pattern. It is
// purely observational: nothing in internal/scheduler or internal/registrar
// depends on a subscriber ever being present.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "mesh:node:"

// Publisher mirrors node lifecycle events. A nil *Publisher is valid and a
// no-op, matching the teacher's Notifier.IsEnabled pattern for optional
// integrations.
type Publisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New creates a Publisher. rdb may be nil, in which case every publish call
// is a no-op (Redis is an optional dependency per spec.md §1).
func New(rdb *redis.Client, logger *slog.Logger) *Publisher {
	return &Publisher{rdb: rdb, logger: logger}
}

// Enabled reports whether this Publisher has a Redis client configured.
func (p *Publisher) Enabled() bool {
	return p != nil && p.rdb != nil
}

type event struct {
	NodeKey string `json:"node_key"`
	NodeID  string `json:"node_id,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// publish is best-effort: a Redis outage never affects scheduler
// correctness, so errors are logged at debug level and swallowed.
func (p *Publisher) publish(ctx context.Context, topic, nodeKey, nodeID, detail string) {
	if !p.Enabled() {
		return
	}
	payload, err := json.Marshal(event{NodeKey: nodeKey, NodeID: nodeID, Detail: detail})
	if err != nil {
		return
	}
	if err := p.rdb.Publish(ctx, channelPrefix+topic, string(payload)).Err(); err != nil {
		p.logger.Debug("publishing lifecycle event", "topic", topic, "node", nodeKey, "error", err)
	}
}

// Online announces that a Node transitioned to Online.
func (p *Publisher) Online(ctx context.Context, nodeKey, nodeID string) {
	p.publish(ctx, "online", nodeKey, nodeID, "")
}

// Offline announces that a Node transitioned to Offline (post-Dismiss).
func (p *Publisher) Offline(ctx context.Context, nodeKey, nodeID string) {
	p.publish(ctx, "offline", nodeKey, nodeID, "")
}

// Purged announces that a Node was removed from the registry.
func (p *Publisher) Purged(ctx context.Context, nodeKey, nodeID string) {
	p.publish(ctx, "purged", nodeKey, nodeID, "")
}

// Stuck announces that an Instantiate task exhausted its retry cap, leaving
// the Node stranded in Registering (spec.md §9 open question #3: this does
// not change behavior, it only makes the condition observable).
func (p *Publisher) Stuck(ctx context.Context, nodeKey, nodeID string) {
	p.publish(ctx, "stuck", nodeKey, nodeID, "instantiate retries exhausted")
}
