// Package registry provides the in-memory implementation of
// presence.Registry.
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/LuG3Zz/Blog/pkg/presence"
)

// pairKey identifies a (user, origin) pairing.
type pairKey struct {
	user   string
	origin string
}

type entry struct {
	handle       presence.Sender
	identity     presence.Identity
	origin       string
	privileged   bool
	registeredAt time.Time
}

// InMemory tracks live connections under several lookup keys. A single
// mutex covers every index: a register or unregister must never be
// observable half-applied, and the first/last computations depend on
// the indices agreeing at the moment they are read.
type InMemory struct {
	mu sync.Mutex

	clients       map[string]*entry                  // primary ownership table
	byUser        map[string]map[string]struct{}     // userID -> clientIDs
	byOrigin      map[string]map[string]struct{}     // origin -> clientIDs
	byPair        map[pairKey]map[string]struct{}    // (user, origin) -> clientIDs
	anonByOrigin  map[string]map[string]struct{}     // origin -> anonymous clientIDs
	usersAtOrigin map[string]map[string]struct{}     // origin -> userIDs
	privileged    map[string]struct{}                // clientIDs with the admin role
	notifiedPairs map[pairKey]struct{}               // online notice sent, not yet retracted
	notifiedAnon  map[string]struct{}                // same, for anonymous presence per origin

	logger *slog.Logger
}

// compile-time check to ensure InMemory implements presence.Registry.
var _ presence.Registry = (*InMemory)(nil)

func NewInMemory(logger *slog.Logger) *InMemory {
	return &InMemory{
		clients:       make(map[string]*entry),
		byUser:        make(map[string]map[string]struct{}),
		byOrigin:      make(map[string]map[string]struct{}),
		byPair:        make(map[pairKey]map[string]struct{}),
		anonByOrigin:  make(map[string]map[string]struct{}),
		usersAtOrigin: make(map[string]map[string]struct{}),
		privileged:    make(map[string]struct{}),
		notifiedPairs: make(map[pairKey]struct{}),
		notifiedAnon:  make(map[string]struct{}),
		logger:        logger.With(slog.String("component", "presence_registry")),
	}
}

func addMember[K comparable](idx map[K]map[string]struct{}, key K, member string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[member] = struct{}{}
}

// removeMember deletes a member and prunes the set when it empties,
// returning the number of members left.
func removeMember[K comparable](idx map[K]map[string]struct{}, key K, member string) int {
	set, ok := idx[key]
	if !ok {
		return 0
	}
	delete(set, member)
	if len(set) == 0 {
		delete(idx, key)
		return 0
	}
	return len(set)
}

func (m *InMemory) Register(clientID string, handle presence.Sender, identity presence.Identity, origin string, privileged bool) presence.RegistrationResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res presence.RegistrationResult
	_, exists := m.clients[clientID]
	res.Replaced = exists

	// First-connection detection uses the set sizes observed before the
	// displaced entry (if any) is torn down: a reconnect reusing its
	// ClientID keeps the pairing continuously occupied, so it must not
	// look like a fresh arrival.
	if identity.IsAnonymous() {
		res.First = len(m.anonByOrigin[origin]) == 0
	} else {
		res.First = len(m.byPair[pairKey{identity.UserID, origin}]) == 0
	}

	if exists {
		// Last-writer-wins: the stale entry goes first. Its teardown may
		// clear the pairing's notified flag, which must survive when the
		// pairing never observationally emptied.
		notified := m.isNotifiedLocked(identity, origin)
		m.removeLocked(clientID)
		if notified {
			m.markNotifiedLocked(identity, origin)
		}
	}

	m.clients[clientID] = &entry{
		handle:       handle,
		identity:     identity,
		origin:       origin,
		privileged:   privileged,
		registeredAt: time.Now(),
	}
	addMember(m.byOrigin, origin, clientID)
	if identity.IsAnonymous() {
		addMember(m.anonByOrigin, origin, clientID)
	} else {
		addMember(m.byUser, identity.UserID, clientID)
		addMember(m.byPair, pairKey{identity.UserID, origin}, clientID)
		addMember(m.usersAtOrigin, origin, identity.UserID)
	}
	if privileged {
		m.privileged[clientID] = struct{}{}
	}

	m.logger.Debug("connection registered",
		slog.String("clientID", clientID),
		slog.String("userID", identity.UserID),
		slog.String("origin", origin),
		slog.Bool("first", res.First),
		slog.Bool("replaced", res.Replaced),
	)
	return res
}

func (m *InMemory) Unregister(clientID string) (presence.TeardownInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.removeLocked(clientID)
	if !ok {
		return presence.TeardownInfo{}, false
	}
	m.logger.Debug("connection unregistered",
		slog.String("clientID", clientID),
		slog.String("userID", info.Identity.UserID),
		slog.String("origin", info.Origin),
		slog.Bool("lastForPair", info.LastForPair),
	)
	return info, true
}

// removeLocked erases the client from every index it participates in
// and clears the notified flag when its pairing empties. Caller holds
// the mutex.
func (m *InMemory) removeLocked(clientID string) (presence.TeardownInfo, bool) {
	e, ok := m.clients[clientID]
	if !ok {
		return presence.TeardownInfo{}, false
	}
	delete(m.clients, clientID)

	info := presence.TeardownInfo{
		Identity:   e.identity,
		Origin:     e.origin,
		Privileged: e.privileged,
	}

	removeMember(m.byOrigin, e.origin, clientID)
	if e.identity.IsAnonymous() {
		if removeMember(m.anonByOrigin, e.origin, clientID) == 0 {
			info.LastForPair = true
			delete(m.notifiedAnon, e.origin)
		}
	} else {
		key := pairKey{e.identity.UserID, e.origin}
		removeMember(m.byUser, e.identity.UserID, clientID)
		if removeMember(m.byPair, key, clientID) == 0 {
			info.LastForPair = true
			delete(m.notifiedPairs, key)
			removeMember(m.usersAtOrigin, e.origin, e.identity.UserID)
		}
	}
	delete(m.privileged, clientID)
	return info, true
}

func (m *InMemory) IsNotified(identity presence.Identity, origin string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isNotifiedLocked(identity, origin)
}

func (m *InMemory) isNotifiedLocked(identity presence.Identity, origin string) bool {
	if identity.IsAnonymous() {
		_, ok := m.notifiedAnon[origin]
		return ok
	}
	_, ok := m.notifiedPairs[pairKey{identity.UserID, origin}]
	return ok
}

func (m *InMemory) MarkNotified(identity presence.Identity, origin string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markNotifiedLocked(identity, origin)
}

func (m *InMemory) markNotifiedLocked(identity presence.Identity, origin string) {
	if identity.IsAnonymous() {
		m.notifiedAnon[origin] = struct{}{}
		return
	}
	m.notifiedPairs[pairKey{identity.UserID, origin}] = struct{}{}
}

func (m *InMemory) Handle(clientID string) (presence.Sender, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.clients[clientID]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

func (m *InMemory) OldestConnectionOf(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldestID string
	var oldestAt time.Time
	for clientID := range m.byUser[userID] {
		e := m.clients[clientID]
		if oldestID == "" || e.registeredAt.Before(oldestAt) {
			oldestID = clientID
			oldestAt = e.registeredAt
		}
	}
	return oldestID, oldestID != ""
}

func (m *InMemory) ConnectionsOf(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return keys(m.byUser[userID])
}

func (m *InMemory) AllClients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.clients))
	for id := range m.clients {
		out = append(out, id)
	}
	return out
}

func (m *InMemory) PrivilegedClients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return keys(m.privileged)
}

func (m *InMemory) UsersAtOrigin(origin string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return keys(m.usersAtOrigin[origin])
}

func (m *InMemory) ConnectionCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser[userID])
}

func (m *InMemory) OriginCount(origin string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byOrigin[origin])
}

func (m *InMemory) Stats() presence.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return presence.Stats{
		Connections: len(m.clients),
		Users:       len(m.byUser),
		Origins:     len(m.byOrigin),
		Privileged:  len(m.privileged),
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
