package inmemory

import (
	"context"
	"sync"

	"github.com/tabwarden/tabwarden/internal/host"
)

type cookieKey struct {
	domain string
	name   string
}

// CookieReader is an in-memory implementation of host.CookieReader with test
// hooks to set and remove cookies.
type CookieReader struct {
	mu      sync.Mutex
	cookies map[cookieKey]string
	events  chan host.CookieEvent
	closed  bool
}

// NewCookieReader creates an empty in-memory cookie jar.
func NewCookieReader() *CookieReader {
	return &CookieReader{
		cookies: make(map[cookieKey]string),
		events:  make(chan host.CookieEvent, eventBuffer),
	}
}

// SetCookie stores a cookie value and emits a change event.
func (c *CookieReader) SetCookie(domain, name, value string) {
	c.mu.Lock()
	c.cookies[cookieKey{domain, name}] = value
	ev := host.CookieEvent{Domain: domain, Name: name}
	closed := c.closed
	c.mu.Unlock()

	if !closed {
		select {
		case c.events <- ev:
		default:
		}
	}
}

// RemoveCookie deletes a cookie and emits a removal event.
func (c *CookieReader) RemoveCookie(domain, name string) {
	c.mu.Lock()
	delete(c.cookies, cookieKey{domain, name})
	ev := host.CookieEvent{Domain: domain, Name: name, Removed: true}
	closed := c.closed
	c.mu.Unlock()

	if !closed {
		select {
		case c.events <- ev:
		default:
		}
	}
}

// Close shuts the event feed down.
func (c *CookieReader) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

func (c *CookieReader) Cookie(_ context.Context, domain, name string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.cookies[cookieKey{domain, name}]
	return v, ok, nil
}

func (c *CookieReader) Events() <-chan host.CookieEvent {
	return c.events
}
