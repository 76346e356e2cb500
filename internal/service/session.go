package service

import (
	"log/slog"
	"sync"

	"github.com/conselhomais/portal"
)

// Gate derives the authenticated flag from the auth provider's state stream
// and toggles the engine's admin subscription tier on transitions.
type Gate struct {
	auth   portal.AuthProvider
	engine *Engine

	mu     sync.RWMutex
	authed bool
	cancel portal.CancelFunc
}

func NewGate(auth portal.AuthProvider, engine *Engine) *Gate {
	return &Gate{auth: auth, engine: engine}
}

// Start subscribes to the identity stream for the lifetime of the process.
func (g *Gate) Start() {
	g.mu.Lock()
	if g.cancel != nil {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	cancel := g.auth.OnStateChanged(func(identity *portal.Identity) {
		authed := identity != nil

		g.mu.Lock()
		was := g.authed
		g.authed = authed
		g.mu.Unlock()

		if authed == was {
			return
		}
		if authed {
			slog.Info(
				"Session authenticated, opening admin subscriptions",
				slog.String("identifier", identity.Identifier),
				slog.String("module", "session"),
			)
			g.engine.StartAdmin()
		} else {
			slog.Info("Session ended, closing admin subscriptions", slog.String("module", "session"))
			g.engine.StopAdmin()
		}
	})

	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()
}

func (g *Gate) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (g *Gate) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authed
}
