// Package externalops is the capability boundary for every side effect the
// node lifecycle performs outside the control plane: DNS, certificates,
// geolocation, and node health probes (spec.md §4.2).
package externalops

import (
	"context"
	"errors"

	"github.com/reseda/meshd/internal/meshnode"
)

// ErrTransient marks a failure the caller should retry. Every Ops method
// returns either nil or an error wrapping ErrTransient — there is no other
// failure mode at this boundary (spec.md §4.2, §7).
var ErrTransient = errors.New("external operation failed transiently")

// NodeStatus is the payload a node's health endpoint returns (spec.md §4.2,
// §6). The fields exist so a caller *could* verify server integrity before
// publicizing it; per spec.md §9 open question 4 this implementation parses
// and logs them but does not compare them against local state.
type NodeStatus struct {
	Status   string `json:"status"`
	Usage    string `json:"usage"`
	IP       string `json:"ip"`
	Cert     string `json:"cert"`
	RecordID string `json:"record_id"`
}

// Ops is the external side-effect capability interface (spec.md §4.2).
type Ops interface {
	// Geolocate resolves an IP to a geolocation blob.
	Geolocate(ctx context.Context, ip string) (meshnode.Location, error)

	// CreateDNS creates an A record mapping the hostname derived from id to
	// target. Called once with proxied=true (target=ip) and once with
	// proxied=false (target="<ip>.dns") per spec.md §4.6.
	CreateDNS(ctx context.Context, id, target string, proxied bool) (recordID string, err error)

	// DeleteDNS removes a DNS record by its provider handle. Best-effort:
	// callers during Purge log and swallow its error (spec.md §4.2).
	DeleteDNS(ctx context.Context, recordID string) error

	// IssueCert submits a CSR for "<id>.reseda.app" and returns the issued
	// certificate PEM and the CA's certificate handle.
	IssueCert(ctx context.Context, id string, csrPEM []byte) (cert, certID string, err error)

	// RevokeCert revokes a previously issued certificate. Best-effort, like
	// DeleteDNS.
	RevokeCert(ctx context.Context, certID string) error

	// ProbeHealth queries the node's own health endpoint.
	ProbeHealth(ctx context.Context, id string) (NodeStatus, error)
}
