// Package client provides per-analyzer HTTP clients with tuned
// connection pooling, generalized from the teacher's client.Pool (which
// built one client per fixed model name) to the gateway's dynamic
// analyzer set.
package client

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lattice-run/modgate/internal/config"
)

// connectTimeout bounds dialing a fresh connection to an analyzer.
const connectTimeout = 2 * time.Second

// Pool manages one *http.Client per analyzer, each sized to that
// analyzer's effective per-call timeout.
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*http.Client
	cfg     *config.Config
}

// NewPool creates a new client pool from the gateway configuration.
func NewPool(cfg *config.Config) *Pool {
	return &Pool{
		clients: make(map[string]*http.Client),
		cfg:     cfg,
	}
}

// Get returns the HTTP client for the named analyzer, creating it on
// first use (double-checked locking, per the teacher's Pool.Get).
func (p *Pool) Get(name string) *http.Client {
	p.mu.RLock()
	c, ok := p.clients[name]
	p.mu.RUnlock()
	if ok {
		return c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok = p.clients[name]; ok {
		return c
	}

	c = p.createClient(p.effectiveTimeout(name))
	p.clients[name] = c
	return c
}

// Timeout returns the effective per-call timeout for an analyzer, used by
// the executor to size each call's context.
func (p *Pool) Timeout(name string) time.Duration {
	return p.effectiveTimeout(name)
}

func (p *Pool) effectiveTimeout(name string) time.Duration {
	if a, ok := p.cfg.Analyzers[name]; ok && a.PerCallTimeout > 0 {
		return a.PerCallTimeout
	}
	return p.cfg.PerCallTimeout
}

func (p *Pool) createClient(perCallTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: perCallTimeout,
	}

	// The client-level Timeout is a generous safety net; the executor
	// enforces the real per-call deadline via context, since timeouts can
	// vary per analyzer and the global deadline can cut a call shorter
	// still.
	return &http.Client{
		Transport: transport,
		Timeout:   perCallTimeout + connectTimeout,
	}
}

// BaseURL returns the configured endpoint for an analyzer.
func (p *Pool) BaseURL(name string) string {
	if a, ok := p.cfg.Analyzers[name]; ok {
		return a.URL
	}
	return ""
}

// APIKey returns the configured outbound API key for an analyzer.
func (p *Pool) APIKey(name string) string {
	if a, ok := p.cfg.Analyzers[name]; ok {
		return a.APIKey
	}
	return ""
}

// CloseAll closes idle connections on every client in the pool.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
	p.clients = make(map[string]*http.Client)
}
