package reaper

import (
	"testing"
	"time"

	"github.com/kluzzebass/filemesh/internal/registry"
)

func TestReaperEvictsStaleWorkers(t *testing.T) {
	reg := registry.New(30 * time.Millisecond)
	reg.Upsert("w1", "h1", time.Now())

	r, err := New(reg, 20*time.Millisecond, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for reg.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected worker to be reaped, registry still has %d entries", reg.Len())
	}
}
