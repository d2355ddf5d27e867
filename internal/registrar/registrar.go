// Package registrar handles node registration requests (spec.md §4.6):
// idempotent creation of a Node plus its DNS/certificate side effects, and
// enqueuing the first Instantiate task. Registrar never writes to Store;
// publication is deferred to the Instantiate handler (internal/scheduler).
package registrar

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reseda/meshd/internal/clock"
	"github.com/reseda/meshd/internal/externalops"
	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/task"
	"github.com/reseda/meshd/internal/telemetry"
)

// ErrForbidden is returned when the caller's auth key does not match the
// configured key (spec.md §4.6 step 1, §7 AuthFailure). It is never
// retried.
var ErrForbidden = errors.New("registration forbidden: auth key mismatch")

// RegisterToInstantiateDelayMillis is the delay between a successful
// registration and its first Instantiate attempt (spec.md §4.8).
const RegisterToInstantiateDelayMillis = 30_000

// Registrar implements the register operation of spec.md §4.6.
type Registrar struct {
	authKey string

	registry *meshnode.Registry
	queue    *task.Queue
	ops      externalops.Ops
	clock    clock.Clock
	logger   *slog.Logger
}

// New creates a Registrar.
func New(authKey string, registry *meshnode.Registry, queue *task.Queue, ops externalops.Ops, clk clock.Clock, logger *slog.Logger) *Registrar {
	return &Registrar{
		authKey:  authKey,
		registry: registry,
		queue:    queue,
		ops:      ops,
		clock:    clk,
		logger:   logger,
	}
}

// Register handles a registration request (spec.md §4.6, steps 1-10).
func (r *Registrar) Register(ctx context.Context, ip, authKey string) (meshnode.Public, error) {
	if subtle.ConstantTimeCompare([]byte(authKey), []byte(r.authKey)) != 1 {
		return meshnode.Public{}, ErrForbidden
	}

	// Idempotent re-registration: no new external calls, no new task
	// (spec.md §4.6 step 2, invariant 1, testable property 6).
	if existing, ok := r.registry.GetOrNone(ip); ok {
		r.logger.Info("idempotent re-registration", "ip", ip, "id", existing.ID)
		return existing.Public(), nil
	}

	id := uuid.New()

	location, err := r.ops.Geolocate(ctx, ip)
	if err != nil {
		return meshnode.Public{}, fmt.Errorf("registering %s: %w", ip, err)
	}

	identifier := fmt.Sprintf("%s-%s", lowerCountry(location.Country), id.String())

	recordID, err := r.ops.CreateDNS(ctx, identifier, ip, true)
	if err != nil {
		return meshnode.Public{}, fmt.Errorf("registering %s: %w", ip, err)
	}

	// The second record is independent of the first; if it fails here the
	// first is left orphaned. spec.md §9 open question 2: preserved as-is,
	// no rollback, no compensating deletion — only a log line for visibility.
	recordDNSID, err := r.ops.CreateDNS(ctx, identifier, ip+".dns", false)
	if err != nil {
		r.logger.Warn("second DNS record failed after first succeeded; orphaning first record",
			"ip", ip, "id", identifier, "orphaned_record_id", recordID)
		return meshnode.Public{}, fmt.Errorf("registering %s: %w", ip, err)
	}

	csrPEM, keyPEM, err := generateCSR(identifier + ".reseda.app")
	if err != nil {
		return meshnode.Public{}, fmt.Errorf("registering %s: generating CSR: %w", ip, err)
	}

	cert, certID, err := r.ops.IssueCert(ctx, identifier, csrPEM)
	if err != nil {
		return meshnode.Public{}, fmt.Errorf("registering %s: %w", ip, err)
	}

	node := meshnode.Node{
		Key:         ip,
		ID:          identifier,
		IP:          ip,
		Location:    location,
		Cert:        cert,
		PrivateKey:  string(keyPEM),
		RecordID:    recordID,
		RecordDNSID: recordDNSID,
		CertID:      certID,
		State:       meshnode.Registering,
	}

	r.registry.Insert(ip, node)

	r.queue.PushBack(task.Task{
		Type:         task.Type{Kind: task.Instantiate, Tries: 0},
		ActionObject: ip,
		ExecAt:       r.clock.NowMillis() + RegisterToInstantiateDelayMillis,
	})
	telemetry.TasksEnqueuedTotal.WithLabelValues(task.Instantiate.String()).Inc()
	telemetry.NodesRegisteredTotal.Inc()

	r.logger.Info("registered new node", "ip", ip, "id", identifier)

	return node.Public(), nil
}

func lowerCountry(country string) string {
	b := []byte(country)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
