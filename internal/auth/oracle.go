// Package auth decides whether sync rounds may run, by inspecting a single
// credential cookie in the browser's jar.
package auth

import (
	"context"
	"log/slog"

	"github.com/tabwarden/tabwarden/internal/host"
)

//go:generate mockgen -destination=mocks/mock_oracle.go -package=mocks -source=oracle.go Oracle

// Oracle answers the point-in-time authentication question and surfaces
// credential changes.
type Oracle interface {
	// IsAuthenticated checks the credential cookie right now
	IsAuthenticated(ctx context.Context) bool

	// Watch invokes onChange with the fresh auth state on every change to
	// the watched cookie, until the context is cancelled or the cookie feed
	// closes. Transitions are passive: no sync is triggered here.
	Watch(ctx context.Context, onChange func(authenticated bool))
}

// CookieOracle is the cookie-backed Oracle. It treats the presence of a
// specific cookie with a specific value on a specific domain as proof of an
// authenticated browser session.
type CookieOracle struct {
	cookies  host.CookieReader
	domain   string
	name     string
	expected string
}

// NewCookieOracle creates an oracle watching one cookie.
func NewCookieOracle(cookies host.CookieReader, domain, name, expected string) *CookieOracle {
	return &CookieOracle{
		cookies:  cookies,
		domain:   domain,
		name:     name,
		expected: expected,
	}
}

// IsAuthenticated implements Oracle. Read failures count as unauthenticated;
// skipping a round is the safe side.
func (o *CookieOracle) IsAuthenticated(ctx context.Context) bool {
	value, ok, err := o.cookies.Cookie(ctx, o.domain, o.name)
	if err != nil {
		slog.Warn("Failed to read credential cookie", "domain", o.domain, "name", o.name, "error", err)
		return false
	}
	return ok && value == o.expected
}

// Watch implements Oracle, filtering the cookie feed down to the one
// credential cookie it cares about.
func (o *CookieOracle) Watch(ctx context.Context, onChange func(authenticated bool)) {
	events := o.cookies.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Domain != o.domain || ev.Name != o.name {
				continue
			}
			authed := o.IsAuthenticated(ctx)
			slog.Info("Auth state changed", "authenticated", authed)
			onChange(authed)
		}
	}
}
