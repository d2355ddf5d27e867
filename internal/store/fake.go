package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/reseda/meshd/internal/meshnode"
)

// Fake is an in-memory Store used by registrar and scheduler tests.
type Fake struct {
	mu   sync.Mutex
	rows map[string]serverRow

	FailInsert int
	FailDelete int

	InsertCalls int
	DeleteCalls int
}

// NewFake creates an empty Fake Store.
func NewFake() *Fake {
	return &Fake{rows: make(map[string]serverRow)}
}

func (f *Fake) InsertServer(ctx context.Context, n meshnode.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InsertCalls++
	if f.FailInsert > 0 {
		f.FailInsert--
		return fmt.Errorf("fake insert failure")
	}
	f.rows[n.ID] = deriveRow(n)
	return nil
}

func (f *Fake) DeleteServer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if f.FailDelete > 0 {
		f.FailDelete--
		return fmt.Errorf("fake delete failure")
	}
	delete(f.rows, id)
	return nil
}

// Has reports whether id currently has a persisted row (test helper).
func (f *Fake) Has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	return ok
}

// Row returns a copy of the persisted row for id (test helper).
func (f *Fake) Row(id string) (serverRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	return r, ok
}

// StoredRow is the exported projection of a persisted row, for assertions
// from other packages' tests.
type StoredRow struct {
	ID       string
	Location string
	Country  string
	Hostname string
	Flag     string
}

// RowFor returns the exported row projection for id, usable outside this
// package (e.g. registrar/scheduler tests asserting on Scenario A).
func (f *Fake) RowFor(id string) (StoredRow, bool) {
	r, ok := f.Row(id)
	if !ok {
		return StoredRow{}, false
	}
	return StoredRow{ID: r.ID, Location: r.Location, Country: r.Country, Hostname: r.Hostname, Flag: r.Flag}, true
}
