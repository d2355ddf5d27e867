// Package store is the capability boundary for the externally-managed
// `servers` table (spec.md §4.3, §6). Both operations are transactional:
// begin, execute, commit, with any failure committing nothing.
package store

import (
	"context"
	"strings"

	"github.com/reseda/meshd/internal/meshnode"
)

// Store persists and removes the durable fleet record for a Node.
type Store interface {
	// InsertServer atomically inserts the row derived from n (spec.md §4.3,
	// §6). It is called from the Instantiate handler, once per attempt whose
	// health probe succeeded; a failed insert is retried by a later attempt.
	InsertServer(ctx context.Context, n meshnode.Node) error

	// DeleteServer atomically deletes the row for id. It is called from the
	// Dismiss handler, once per attempt; a failed delete is retried by a
	// later attempt.
	DeleteServer(ctx context.Context, id string) error
}

// serverRow is the derived (id, location, country, hostname, flag) tuple
// spec.md §6 specifies. Note the table's "country" column is the timezone's
// city segment (spec.md §4.3 "timezoneCity"), distinct from the Node's own
// Location.Country, which instead feeds "flag" (spec.md §4.3, Scenario A:
// country="NZ", timezone="Pacific/Auckland" -> id="nz-...", flag="nz").
type serverRow struct {
	ID       string
	Location string
	Country  string
	Hostname string
	Flag     string
}

func deriveRow(n meshnode.Node) serverRow {
	timezoneCity := ""
	if parts := strings.SplitN(n.Location.Timezone, "/", 2); len(parts) == 2 {
		timezoneCity = parts[1]
	}
	return serverRow{
		ID:       n.ID,
		Location: n.Location.Timezone,
		Country:  timezoneCity,
		Hostname: n.IP,
		Flag:     strings.ReplaceAll(strings.ToLower(n.Location.Country), " ", "-"),
	}
}
