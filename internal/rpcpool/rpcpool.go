// Package rpcpool maintains a shared pool of HTTP/2 cleartext clients
// to worker and scheduler peers, so repeated RPCs to the same address
// reuse one connection instead of dialing fresh each time.
package rpcpool

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// Pool caches one h2c-capable *http.Client per address.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*http.Client
}

// New creates an empty connection pool.
func New() *Pool {
	return &Pool{clients: make(map[string]*http.Client)}
}

// Client returns a cached or newly created client for addr. The
// returned client is shared across callers and safe for concurrent
// use.
func (p *Pool) Client(addr string) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[addr]; ok {
		return c
	}

	c := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, dialAddr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, dialAddr)
			},
		},
	}
	p.clients[addr] = c
	return c
}

// Invalidate drops the cached client for addr, forcing a fresh one on
// the next Client call. Used when a peer's RPC fails in a way that
// suggests the underlying connection is bad.
func (p *Pool) Invalidate(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, addr)
}
