package externalops

import (
	"context"
	"fmt"
	"sync"

	"github.com/reseda/meshd/internal/meshnode"
)

// Fake is a programmable in-memory Ops used by registrar and scheduler
// tests, in the spirit of the teacher's pkg/integration.NoopCaller: it
// records every call and lets a test script failures before they happen.
type Fake struct {
	mu sync.Mutex

	Location meshnode.Location
	Health   NodeStatus

	// FailGeolocate, FailCreateDNS, etc. make the corresponding method return
	// ErrTransient the next N times it is called (decrementing per call).
	FailGeolocate       int
	FailCreateDNS       int
	FailCreateDNSAtCall int
	FailIssueCert       int
	FailProbeHealth     int

	CreateDNSCalls  []string // target values passed, in call order
	DeleteDNSCalls  []string
	RevokeCertCalls []string

	nextRecordID int
	nextCertID   int
}

// NewFake creates a Fake Ops with a plausible default location and a healthy
// probe response.
func NewFake() *Fake {
	return &Fake{
		Location: meshnode.Location{
			Country:     "New Zealand",
			CountryCode: "NZ",
			Region:      "Auckland",
			City:        "Auckland",
			Timezone:    "Pacific/Auckland",
		},
		Health: NodeStatus{Status: "ok", Usage: "low"},
	}
}

func (f *Fake) Geolocate(ctx context.Context, ip string) (meshnode.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailGeolocate > 0 {
		f.FailGeolocate--
		return meshnode.Location{}, fmt.Errorf("%w: fake geolocate failure", ErrTransient)
	}
	return f.Location, nil
}

func (f *Fake) CreateDNS(ctx context.Context, id, target string, proxied bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateDNSCalls = append(f.CreateDNSCalls, target)
	// FailCreateDNSAtCall, if set, fails only that 1-indexed call number;
	// it takes priority over the simpler FailCreateDNS countdown below.
	if f.FailCreateDNSAtCall == len(f.CreateDNSCalls) {
		return "", fmt.Errorf("%w: fake create DNS failure", ErrTransient)
	}
	if f.FailCreateDNS > 0 {
		f.FailCreateDNS--
		return "", fmt.Errorf("%w: fake create DNS failure", ErrTransient)
	}
	f.nextRecordID++
	return fmt.Sprintf("record-%d", f.nextRecordID), nil
}

func (f *Fake) DeleteDNS(ctx context.Context, recordID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteDNSCalls = append(f.DeleteDNSCalls, recordID)
	return nil
}

func (f *Fake) IssueCert(ctx context.Context, id string, csrPEM []byte) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailIssueCert > 0 {
		f.FailIssueCert--
		return "", "", fmt.Errorf("%w: fake issue cert failure", ErrTransient)
	}
	f.nextCertID++
	return "-----BEGIN CERTIFICATE-----\nfake\n-----END CERTIFICATE-----", fmt.Sprintf("cert-%d", f.nextCertID), nil
}

func (f *Fake) RevokeCert(ctx context.Context, certID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RevokeCertCalls = append(f.RevokeCertCalls, certID)
	return nil
}

func (f *Fake) ProbeHealth(ctx context.Context, id string) (NodeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailProbeHealth > 0 {
		f.FailProbeHealth--
		return NodeStatus{}, fmt.Errorf("%w: fake probe health failure", ErrTransient)
	}
	return f.Health, nil
}
