package presence

// Sender is the transport-facing side of a connection handle. The
// registry never initiates I/O; only the Broadcaster calls Send, and a
// returned error means the connection is dead.
type Sender interface {
	Send(message []byte) error
}

// Registry owns every mapping between connection handle, client ID,
// user identity and network origin. All mutation goes through Register
// and Unregister so the indices can never disagree; the notified-flag
// accessors are separate so presence policy (the Coordinator) decides
// when to consult them.
type Registry interface {
	// --- Connection Lifecycle ---
	// Register inserts the connection into every index it belongs to.
	// An already-registered clientID is torn down and replaced.
	Register(clientID string, handle Sender, identity Identity, origin string, privileged bool) RegistrationResult
	// Unregister removes the connection from every index. The second
	// return is false when the clientID was not live (idempotent).
	Unregister(clientID string) (TeardownInfo, bool)

	// --- Notification flags ---
	IsNotified(identity Identity, origin string) bool
	MarkNotified(identity Identity, origin string)

	// --- Read-only snapshots ---
	Handle(clientID string) (Sender, bool)
	// OldestConnectionOf returns the longest-registered connection of a
	// user, used by the connection limiter's cycle mode.
	OldestConnectionOf(userID string) (string, bool)
	ConnectionsOf(userID string) []string
	AllClients() []string
	PrivilegedClients() []string
	UsersAtOrigin(origin string) []string

	// --- Counters ---
	ConnectionCount(userID string) int
	OriginCount(origin string) int
	Stats() Stats
}
