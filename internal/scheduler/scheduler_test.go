package scheduler

import (
	"context"
	"log/slog"
	"testing"

	"github.com/reseda/meshd/internal/clock"
	"github.com/reseda/meshd/internal/events"
	"github.com/reseda/meshd/internal/externalops"
	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/notify"
	"github.com/reseda/meshd/internal/store"
	"github.com/reseda/meshd/internal/task"
)

func newTestScheduler() (*Scheduler, *meshnode.Registry, *task.Queue, *externalops.Fake, *store.Fake, *clock.Fake) {
	registry := meshnode.NewRegistry()
	queue := task.NewQueue()
	ops := externalops.NewFake()
	st := store.NewFake()
	clk := clock.NewFake(1_000_000)
	logger := slog.Default()
	s := New(registry, queue, ops, st, clk, logger, events.New(nil, logger), notify.New("", "", logger))
	return s, registry, queue, ops, st, clk
}

func registeredNode(key string) meshnode.Node {
	return meshnode.Node{
		Key: key,
		ID:  "nz-1111",
		IP:  key,
		Location: meshnode.Location{
			Country:  "NZ",
			Timezone: "Pacific/Auckland",
		},
		Cert:        "cert",
		RecordID:    "record-1",
		RecordDNSID: "record-2",
		CertID:      "cert-1",
		State:       meshnode.Registering,
	}
}

func TestInstantiateHappyPath(t *testing.T) {
	// Scenario A (instantiate portion).
	s, registry, queue, _, st, _ := newTestScheduler()
	registry.Insert("1.2.3.4", registeredNode("1.2.3.4"))

	s.handleInstantiate(context.Background(), task.Task{
		Type:         task.Type{Kind: task.Instantiate, Tries: 0},
		ActionObject: "1.2.3.4",
		ExecAt:       1_000_000,
	})

	n, _ := registry.GetOrNone("1.2.3.4")
	if n.State != meshnode.Online {
		t.Fatalf("state = %v, want Online", n.State)
	}
	row, ok := st.RowFor("nz-1111")
	if !ok {
		t.Fatal("expected store row for nz-1111")
	}
	if row.Flag != "nz" || row.Hostname != "1.2.3.4" {
		t.Errorf("unexpected row: %+v", row)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", queue.Len())
	}
	tsk, _ := queue.PopFront()
	if tsk.Type.Kind != task.CheckStatus || tsk.Type.Tries != 0 {
		t.Errorf("expected CheckStatus(0), got %+v", tsk.Type)
	}
}

func TestInstantiateRetriesOnProbeFailure(t *testing.T) {
	s, registry, queue, ops, st, _ := newTestScheduler()
	registry.Insert("1.2.3.4", registeredNode("1.2.3.4"))
	ops.FailProbeHealth = 1

	s.handleInstantiate(context.Background(), task.Task{
		Type:         task.Type{Kind: task.Instantiate, Tries: 0},
		ActionObject: "1.2.3.4",
	})

	if st.InsertCalls != 0 {
		t.Fatal("store must not be written on a failed probe")
	}
	if queue.Len() != 1 {
		t.Fatalf("expected 1 retry task, got %d", queue.Len())
	}
	tsk, _ := queue.PopFront()
	if tsk.Type.Kind != task.Instantiate || tsk.Type.Tries != 1 {
		t.Errorf("expected Instantiate(1), got %+v", tsk.Type)
	}
	if tsk.ExecAt != 1_000_000+RetryBackoffMillis {
		t.Errorf("execAt = %d, want %d", tsk.ExecAt, 1_000_000+RetryBackoffMillis)
	}
	n, _ := registry.GetOrNone("1.2.3.4")
	if n.State != meshnode.Registering {
		t.Errorf("state = %v, want Registering (unchanged)", n.State)
	}
}

func TestInstantiateExhaustion(t *testing.T) {
	// Scenario C: health probe always fails; after the cap, no further
	// tasks enqueue and the node is never written to the Store.
	s, registry, queue, ops, st, _ := newTestScheduler()
	registry.Insert("1.2.3.4", registeredNode("1.2.3.4"))
	ops.FailProbeHealth = 1_000_000 // never succeeds

	tries := 0
	for i := 0; i < InstantiateMaxTries; i++ {
		s.handleInstantiate(context.Background(), task.Task{
			Type:         task.Type{Kind: task.Instantiate, Tries: tries},
			ActionObject: "1.2.3.4",
		})
		if queue.Len() != 1 {
			t.Fatalf("iteration %d: expected 1 requeued task, got %d", i, queue.Len())
		}
		tsk, _ := queue.PopFront()
		tries = tsk.Type.Tries
	}

	if tries != InstantiateMaxTries {
		t.Fatalf("tries = %d, want %d", tries, InstantiateMaxTries)
	}

	// Dispatching the cap-reaching task terminates silently.
	s.handleInstantiate(context.Background(), task.Task{
		Type:         task.Type{Kind: task.Instantiate, Tries: tries},
		ActionObject: "1.2.3.4",
	})
	if queue.Len() != 0 {
		t.Fatalf("expected no further tasks after cap, got %d", queue.Len())
	}
	n, _ := registry.GetOrNone("1.2.3.4")
	if n.State != meshnode.Registering {
		t.Errorf("state = %v, want Registering (node remains stuck)", n.State)
	}
	if st.InsertCalls != 0 {
		t.Fatal("store must never be written when instantiate never succeeds")
	}
}

func TestCheckStatusFlappingToDismissAndPurge(t *testing.T) {
	// Scenario D.
	s, registry, queue, ops, st, clk := newTestScheduler()
	registry.Insert("1.2.3.4", registeredNode("1.2.3.4"))

	s.handleInstantiate(context.Background(), task.Task{
		Type:         task.Type{Kind: task.Instantiate, Tries: 0},
		ActionObject: "1.2.3.4",
	})
	queue.PopFront() // drain the CheckStatus(0) instantiate enqueued

	ops.FailProbeHealth = 1_000_000

	tries := 0
	for i := 0; i < CheckStatusMaxTries; i++ {
		s.handleCheckStatus(context.Background(), task.Task{
			Type:         task.Type{Kind: task.CheckStatus, Tries: tries},
			ActionObject: "1.2.3.4",
		})
		tsk, ok := queue.PopFront()
		if !ok {
			t.Fatalf("iteration %d: expected a requeued task", i)
		}
		if i < CheckStatusMaxTries-1 {
			if tsk.Type.Kind != task.CheckStatus {
				t.Fatalf("iteration %d: expected CheckStatus, got %v", i, tsk.Type.Kind)
			}
			tries = tsk.Type.Tries
		} else {
			if tsk.Type.Kind != task.CheckStatus || tsk.Type.Tries != CheckStatusMaxTries {
				t.Fatalf("expected final CheckStatus(%d), got %+v", CheckStatusMaxTries, tsk.Type)
			}
			tries = tsk.Type.Tries
		}
	}

	// Dispatching CheckStatus at the cap escalates to Dismiss(0).
	s.handleCheckStatus(context.Background(), task.Task{
		Type:         task.Type{Kind: task.CheckStatus, Tries: tries},
		ActionObject: "1.2.3.4",
	})
	tsk, ok := queue.PopFront()
	if !ok || tsk.Type.Kind != task.Dismiss || tsk.Type.Tries != 0 {
		t.Fatalf("expected Dismiss(0), got %+v (ok=%v)", tsk.Type, ok)
	}

	s.handleDismiss(context.Background(), tsk)
	if st.DeleteCalls != 1 {
		t.Fatalf("expected 1 store delete, got %d", st.DeleteCalls)
	}
	n, _ := registry.GetOrNone("1.2.3.4")
	if n.State != meshnode.Offline {
		t.Fatalf("state = %v, want Offline", n.State)
	}

	purgeTask, ok := queue.PopFront()
	if !ok || purgeTask.Type.Kind != task.Purge {
		t.Fatalf("expected Purge enqueued, got %+v (ok=%v)", purgeTask.Type, ok)
	}
	wantExecAt := clk.NowMillis() + PurgeDelayMillis
	if purgeTask.ExecAt != wantExecAt {
		t.Errorf("purge execAt = %d, want %d", purgeTask.ExecAt, wantExecAt)
	}
}

func TestPurgeSkippedOnRecovery(t *testing.T) {
	// Scenario E: a node that recovered to Online before its Purge task
	// fires must not be removed.
	s, registry, _, ops, st, _ := newTestScheduler()
	n := registeredNode("1.2.3.4")
	n.State = meshnode.Offline
	registry.Insert("1.2.3.4", n)

	registry.Mutate("1.2.3.4", func(n meshnode.Node) meshnode.Node {
		n.State = meshnode.Online
		return n
	})

	s.handlePurge(context.Background(), task.Task{
		Type:         task.Type{Kind: task.Purge},
		ActionObject: "1.2.3.4",
	})

	if !registry.ContainsKey("1.2.3.4") {
		t.Fatal("node must not be removed while Online")
	}
	if len(ops.DeleteDNSCalls) != 0 || len(ops.RevokeCertCalls) != 0 {
		t.Fatal("no external teardown should occur on a skipped purge")
	}
	_ = st
}

func TestPurgeRemovesOfflineNode(t *testing.T) {
	s, registry, _, ops, _, _ := newTestScheduler()
	n := registeredNode("1.2.3.4")
	n.State = meshnode.Offline
	registry.Insert("1.2.3.4", n)

	s.handlePurge(context.Background(), task.Task{
		Type:         task.Type{Kind: task.Purge},
		ActionObject: "1.2.3.4",
	})

	if registry.ContainsKey("1.2.3.4") {
		t.Fatal("expected node to be removed")
	}
	if len(ops.DeleteDNSCalls) != 2 {
		t.Fatalf("expected 2 DeleteDNS calls, got %d", len(ops.DeleteDNSCalls))
	}
	if len(ops.RevokeCertCalls) != 1 {
		t.Fatalf("expected 1 RevokeCert call, got %d", len(ops.RevokeCertCalls))
	}
}

func TestInstantiateAbsentNodeEscalatesToDismiss(t *testing.T) {
	s, _, queue, _, _, _ := newTestScheduler()

	s.handleInstantiate(context.Background(), task.Task{
		Type:         task.Type{Kind: task.Instantiate, Tries: 0},
		ActionObject: "ghost",
	})

	tsk, ok := queue.PopFront()
	if !ok || tsk.Type.Kind != task.Dismiss || tsk.Type.Tries != 0 {
		t.Fatalf("expected Dismiss(0) for a vanished node, got %+v (ok=%v)", tsk.Type, ok)
	}
}

func TestDismissAbsentNodeTerminates(t *testing.T) {
	s, _, queue, _, _, _ := newTestScheduler()

	s.handleDismiss(context.Background(), task.Task{
		Type:         task.Type{Kind: task.Dismiss, Tries: 0},
		ActionObject: "ghost",
	})

	if queue.Len() != 0 {
		t.Fatal("dismissing an absent node must not enqueue anything")
	}
}
