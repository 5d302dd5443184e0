package registry

import (
	"testing"
	"time"
)

func TestUpsertAndActive(t *testing.T) {
	r := New(5 * time.Second)
	base := time.Now()

	r.Upsert("w1", "host1:9000", base)
	r.Upsert("w2", "host2:9000", base)
	r.Upsert("w3", "host3:9000", base)

	active := r.Active(base)
	if len(active) != 3 {
		t.Fatalf("expected 3 active workers, got %d", len(active))
	}
	if active[0].ID != "w1" || active[1].ID != "w2" || active[2].ID != "w3" {
		t.Errorf("expected insertion order w1,w2,w3, got %+v", active)
	}
}

func TestLivenessFilter(t *testing.T) {
	r := New(5 * time.Second)
	base := time.Now()

	r.Upsert("w1", "host1:9000", base)
	r.Upsert("w2", "host2:9000", base)
	r.Upsert("w3", "host3:9000", base)

	// w2 stops heartbeating; others refresh.
	later := base.Add(6 * time.Second)
	r.Upsert("w1", "host1:9000", later)
	r.Upsert("w3", "host3:9000", later)

	active := r.Active(later)
	if len(active) != 2 {
		t.Fatalf("expected 2 active workers after w2 goes stale, got %d: %+v", len(active), active)
	}
	for _, w := range active {
		if w.ID == "w2" {
			t.Error("w2 should have been filtered out as stale")
		}
	}
}

func TestReap(t *testing.T) {
	r := New(5 * time.Second)
	base := time.Now()
	r.Upsert("w1", "host1:9000", base)
	r.Upsert("w2", "host2:9000", base)

	later := base.Add(10 * time.Second)
	removed := r.Reap(later)
	if len(removed) != 2 {
		t.Fatalf("expected both workers reaped, got %v", removed)
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry after reap, got %d entries", r.Len())
	}
}

func TestReapedWorkerReregisters(t *testing.T) {
	r := New(5 * time.Second)
	base := time.Now()
	r.Upsert("w1", "host1:9000", base)

	stale := base.Add(10 * time.Second)
	r.Reap(stale)
	if r.Len() != 0 {
		t.Fatal("expected w1 reaped")
	}

	r.Upsert("w1", "host1:9001", stale)
	active := r.Active(stale)
	if len(active) != 1 || active[0].Address != "host1:9001" {
		t.Errorf("expected w1 re-registered with new address, got %+v", active)
	}
}

func TestAddressOverwritten(t *testing.T) {
	r := New(5 * time.Second)
	base := time.Now()
	r.Upsert("w1", "host1:9000", base)
	r.Upsert("w1", "host1:9999", base)

	active := r.Active(base)
	if len(active) != 1 || active[0].Address != "host1:9999" {
		t.Errorf("expected address overwritten, got %+v", active)
	}
}
