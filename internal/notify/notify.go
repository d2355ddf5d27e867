// Package notify posts operator-facing Slack messages when a node leaves
// service, mirroring the teacher's pkg/slack Notifier/IsEnabled pattern.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier sends node-lifecycle messages to a Slack channel.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Notifier. If botToken is empty the notifier is a no-op
// (logging only), same as the teacher's pkg/slack.NewNotifier.
func New(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether this Notifier has a usable Slack client.
func (n *Notifier) IsEnabled() bool {
	return n != nil && n.client != nil && n.channel != ""
}

// NodeDismissed reports that a node was marked Offline and removed from the
// Store (spec.md §4.8 Dismiss).
func (n *Notifier) NodeDismissed(ctx context.Context, nodeID, ip string) {
	n.post(ctx, fmt.Sprintf(":warning: node `%s` (%s) dismissed — unreachable, removed from store", nodeID, ip))
}

// NodePurged reports that a node's external resources were torn down and it
// was removed from the registry (spec.md §4.8 Purge).
func (n *Notifier) NodePurged(ctx context.Context, nodeID, ip string) {
	n.post(ctx, fmt.Sprintf(":x: node `%s` (%s) purged — DNS and certificate released", nodeID, ip))
}

func (n *Notifier) post(ctx context.Context, text string) {
	if n == nil {
		return
	}
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping node notification", "text", text)
		return
	}
	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Warn("posting node lifecycle notification to slack", "error", err)
	}
}
