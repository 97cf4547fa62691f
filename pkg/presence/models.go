package presence

// Identity is what a connection is tagged with at registration time:
// either a user ID obtained from token verification, or nothing.
// Immutable for the lifetime of the connection.
type Identity struct {
	UserID string
}

// Anonymous is the zero identity.
var Anonymous = Identity{}

// User builds an identified Identity.
func User(id string) Identity {
	return Identity{UserID: id}
}

// IsAnonymous reports whether the identity carries no user.
func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// RegistrationResult describes what a Register call observed.
type RegistrationResult struct {
	// First is true when this is the first live connection for the
	// (identity, origin) pairing, or the first anonymous connection at
	// the origin for anonymous connections.
	First bool
	// Replaced is true when the ClientID was already registered and the
	// previous handle was displaced (last-writer-wins reconnect).
	Replaced bool
}

// TeardownInfo describes the connection an Unregister call removed.
type TeardownInfo struct {
	Identity   Identity
	Origin     string
	Privileged bool
	// LastForPair is true when no connection remains for the pairing
	// the removed connection belonged to: (user, origin) if identified,
	// the anonymous population of the origin otherwise.
	LastForPair bool
}

// Stats is a point-in-time summary of the registry, shaped for the
// status endpoint.
type Stats struct {
	Connections int `json:"active_connections"`
	Users       int `json:"active_users"`
	Origins     int `json:"active_ips"`
	Privileged  int `json:"active_admins"`
}
