package fetch

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ljobx/ljobx/pkg/proxy"
)

// ClientCache lazily creates and caches one persistent HTTP client per
// route, keyed by route identity, so connection pools are reused across
// fetches. Clients carry no own timeout; deadlines come from per-request
// contexts.
type ClientCache struct {
	mu      sync.Mutex
	clients map[string]*http.Client
	closed  bool
}

// NewClientCache creates an empty client cache.
func NewClientCache() *ClientCache {
	return &ClientCache{
		clients: make(map[string]*http.Client),
	}
}

// Get returns the cached client for the route, creating one on first use.
// Concurrent first-use calls for the same route yield a single stored
// client.
func (c *ClientCache) Get(route proxy.Route) *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[route.ID()]; ok {
		return client
	}

	client := &http.Client{Transport: newTransport(route)}
	c.clients[route.ID()] = client
	return client
}

// CloseAll closes the idle connections of every cached client exactly once.
// Safe to call again; subsequent calls are no-ops.
func (c *ClientCache) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for _, client := range c.clients {
		client.CloseIdleConnections()
	}
	c.clients = make(map[string]*http.Client)
}

// newTransport builds a transport routed through the given proxy, or a
// direct transport for the sentinel route. socks5:// URLs are handled by
// net/http's built-in SOCKS support.
func newTransport(route proxy.Route) *http.Transport {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if !route.IsDirect() {
		transport.Proxy = http.ProxyURL(route.URL())
	}
	return transport
}
