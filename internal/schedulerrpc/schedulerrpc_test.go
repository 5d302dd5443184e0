package schedulerrpc

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kluzzebass/filemesh/internal/metadata/sqlite"
	"github.com/kluzzebass/filemesh/internal/oracle"
	"github.com/kluzzebass/filemesh/internal/registry"
	"github.com/kluzzebass/filemesh/internal/rpcpool"
)

func newTestServer(t *testing.T) (string, *registry.Registry) {
	t.Helper()
	gw, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gw.Close() })

	reg := registry.New(5 * time.Second)
	o := oracle.New(reg, gw, nil, nil)
	h := NewHandler(reg, o, nil, nil)

	srv := httptest.NewServer(h.H2CHandler())
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String(), reg
}

func TestSendHeartbeatRegistersWorker(t *testing.T) {
	addr, reg := newTestServer(t)
	client := NewClient(addr, rpcpool.New())

	if err := client.SendHeartbeat(context.Background(), "w1", "w1-host:6001"); err != nil {
		t.Fatalf("SendHeartbeat: %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("expected registry to have 1 worker, got %d", reg.Len())
	}
}

func TestAssignWorkerForChunkAssignsAndIsIdempotent(t *testing.T) {
	addr, _ := newTestServer(t)
	client := NewClient(addr, rpcpool.New())
	ctx := context.Background()

	if err := client.SendHeartbeat(ctx, "w1", "w1-host:6001"); err != nil {
		t.Fatal(err)
	}

	workerID, workerAddr, err := client.AssignWorkerForChunk(ctx, "w1", "f1", 0)
	if err != nil {
		t.Fatalf("AssignWorkerForChunk: %v", err)
	}
	if workerID != "w1" || workerAddr != "w1-host:6001" {
		t.Errorf("unexpected assignment: %s %s", workerID, workerAddr)
	}

	workerID2, _, err := client.AssignWorkerForChunk(ctx, "w2", "f1", 0)
	if err != nil {
		t.Fatalf("redelivery AssignWorkerForChunk: %v", err)
	}
	if workerID2 != workerID {
		t.Errorf("expected redelivery to return original placement %s, got %s", workerID, workerID2)
	}
}

func TestAssignWorkerForChunkNoActiveWorkers(t *testing.T) {
	addr, _ := newTestServer(t)
	client := NewClient(addr, rpcpool.New())

	_, _, err := client.AssignWorkerForChunk(context.Background(), "w1", "f1", 0)
	if err != ErrNoActiveWorkers {
		t.Fatalf("expected ErrNoActiveWorkers, got %v", err)
	}
}
