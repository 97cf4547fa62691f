package presence

import "log/slog"

// Coordinator wraps the registry with the policy for when a
// connect/disconnect should produce a presence broadcast. First/last
// detection alone is necessary but not sufficient: the notified flag
// guards against double announcements when connections churn faster
// than the flag lifecycle.
type Coordinator struct {
	registry Registry
	logger   *slog.Logger
}

func NewCoordinator(logger *slog.Logger, registry Registry) *Coordinator {
	return &Coordinator{
		registry: registry,
		logger:   logger.With(slog.String("component", "presence_coordinator")),
	}
}

// Connect registers the connection and reports whether the caller
// should broadcast an online event for its identity/origin pairing.
// When it returns true the pairing has been marked notified.
func (c *Coordinator) Connect(clientID string, handle Sender, identity Identity, origin string, privileged bool) bool {
	res := c.registry.Register(clientID, handle, identity, origin, privileged)
	if !res.First {
		return false
	}
	if c.registry.IsNotified(identity, origin) {
		return false
	}
	c.registry.MarkNotified(identity, origin)
	c.logger.Info("presence online",
		slog.String("clientID", clientID),
		slog.String("userID", identity.UserID),
		slog.String("origin", origin),
	)
	return true
}

// Disconnect unregisters the connection. The boolean is true when the
// caller should broadcast an offline event; the teardown info then
// names the identity and origin going offline. The registry has
// already cleared the notified flag, so a later reconnect announces
// itself afresh.
func (c *Coordinator) Disconnect(clientID string) (TeardownInfo, bool) {
	info, ok := c.registry.Unregister(clientID)
	if !ok {
		return TeardownInfo{}, false
	}
	if !info.LastForPair {
		return info, false
	}
	c.logger.Info("presence offline",
		slog.String("clientID", clientID),
		slog.String("userID", info.Identity.UserID),
		slog.String("origin", info.Origin),
	)
	return info, true
}
