package rpcpool

import "testing"

func TestClientCaching(t *testing.T) {
	p := New()
	c1 := p.Client("worker-1:6001")
	c2 := p.Client("worker-1:6001")
	if c1 != c2 {
		t.Error("expected cached client for same address")
	}

	c3 := p.Client("worker-2:6001")
	if c3 == c1 {
		t.Error("expected distinct clients for distinct addresses")
	}
}

func TestInvalidateForcesNewClient(t *testing.T) {
	p := New()
	c1 := p.Client("worker-1:6001")
	p.Invalidate("worker-1:6001")
	c2 := p.Client("worker-1:6001")
	if c1 == c2 {
		t.Error("expected a fresh client after Invalidate")
	}
}
