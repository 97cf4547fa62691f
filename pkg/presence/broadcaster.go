package presence

import "log/slog"

// Broadcaster fans serialized messages out to connections. It iterates
// snapshots rather than live sets so a failed send, which unregisters
// the dead connection, cannot mutate what is being ranged over. Sends
// happen outside the registry lock.
type Broadcaster struct {
	registry Registry
	logger   *slog.Logger
}

func NewBroadcaster(logger *slog.Logger, registry Registry) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		logger:   logger.With(slog.String("component", "broadcaster")),
	}
}

// SendTo delivers a message to one connection. It returns false when
// the client is unknown or the transport write fails; a failed write
// unregisters the connection. This is the single self-healing point
// that keeps stale handles from accumulating.
func (b *Broadcaster) SendTo(clientID string, message []byte) bool {
	handle, ok := b.registry.Handle(clientID)
	if !ok {
		return false
	}
	if err := handle.Send(message); err != nil {
		b.logger.Warn("send failed, dropping connection",
			slog.String("clientID", clientID),
			slog.Any("error", err),
		)
		b.registry.Unregister(clientID)
		return false
	}
	return true
}

// SendToUser delivers a message to every connection of a user,
// returning the number of successful sends.
func (b *Broadcaster) SendToUser(userID string, message []byte) int {
	sent := 0
	for _, clientID := range b.registry.ConnectionsOf(userID) {
		if b.SendTo(clientID, message) {
			sent++
		}
	}
	return sent
}

// Broadcast delivers a message to every live connection, optionally
// excluding one client (the usual sender), returning the success count.
func (b *Broadcaster) Broadcast(message []byte, exclude string) int {
	sent := 0
	for _, clientID := range b.registry.AllClients() {
		if exclude != "" && clientID == exclude {
			continue
		}
		if b.SendTo(clientID, message) {
			sent++
		}
	}
	return sent
}

// BroadcastToPrivileged delivers a message to every admin connection.
func (b *Broadcaster) BroadcastToPrivileged(message []byte) int {
	sent := 0
	for _, clientID := range b.registry.PrivilegedClients() {
		if b.SendTo(clientID, message) {
			sent++
		}
	}
	return sent
}
