package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/tabwarden/tabwarden/internal/host"
)

// CookieReader implements host.CookieReader over the devtools storage
// domain. The protocol has no cookie-change notification, so changes are
// detected by polling and diffing against the last snapshot.
type CookieReader struct {
	browserCtx   context.Context
	pollInterval time.Duration

	mu     sync.Mutex
	last   map[string]string
	events chan host.CookieEvent
	closed bool
}

// NewCookieReader creates a cookie reader sharing the tab host's devtools
// connection.
func NewCookieReader(tabs *TabHost) *CookieReader {
	c := &CookieReader{
		browserCtx:   tabs.browserCtx,
		pollInterval: tabs.pollInterval,
		last:         make(map[string]string),
		events:       make(chan host.CookieEvent, eventBuffer),
	}
	go c.pump(tabs.browserCtx)
	return c
}

func (c *CookieReader) Cookie(_ context.Context, domain, name string) (string, bool, error) {
	cookies, err := c.fetch()
	if err != nil {
		return "", false, err
	}
	v, ok := cookies[cookieKey(domain, name)]
	return v, ok, nil
}

func (c *CookieReader) Events() <-chan host.CookieEvent {
	return c.events
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

func (c *CookieReader) fetch() (map[string]string, error) {
	var out map[string]string
	err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(runCtx context.Context) error {
		cookies, err := storage.GetCookies().Do(runCtx)
		if err != nil {
			return err
		}
		out = make(map[string]string, len(cookies))
		for _, ck := range cookies {
			out[cookieKey(ck.Domain, ck.Name)] = ck.Value
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return out, nil
}

func (c *CookieReader) pump(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := c.fetch()
			if err != nil {
				continue
			}
			c.diff(current)
		}
	}
}

func (c *CookieReader) diff(current map[string]string) {
	c.mu.Lock()
	var evs []host.CookieEvent
	for key, value := range current {
		if prev, ok := c.last[key]; !ok || prev != value {
			domain, name := splitCookieKey(key)
			evs = append(evs, host.CookieEvent{Domain: domain, Name: name})
		}
	}
	for key := range c.last {
		if _, ok := current[key]; !ok {
			domain, name := splitCookieKey(key)
			evs = append(evs, host.CookieEvent{Domain: domain, Name: name, Removed: true})
		}
	}
	c.last = current
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	for _, ev := range evs {
		select {
		case c.events <- ev:
		default:
		}
	}
}

// Cookie domains arrive host-scoped or dot-prefixed; normalize so the oracle
// can match on the bare domain.
func cookieKey(domain, name string) string {
	return strings.TrimPrefix(domain, ".") + "\x00" + name
}

func splitCookieKey(key string) (domain, name string) {
	parts := strings.SplitN(key, "\x00", 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}
