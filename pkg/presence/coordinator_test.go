package presence_test

import (
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuG3Zz/Blog/pkg/presence"
	"github.com/LuG3Zz/Blog/pkg/presence/registry"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type mockConn struct {
	mu       sync.Mutex
	received [][]byte
	sendErr  error
}

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func newCoordinator(t *testing.T) (*presence.Coordinator, *registry.InMemory) {
	t.Helper()
	reg := registry.NewInMemory(newTestLogger())
	return presence.NewCoordinator(newTestLogger(), reg), reg
}

func TestCoordinatorUserLifecycle(t *testing.T) {
	coord, _ := newCoordinator(t)
	u1 := presence.User("u1")

	// First connection announces; the second from the same pairing
	// must not, even though the flag is already set.
	assert.True(t, coord.Connect("a", &mockConn{}, u1, "1.2.3.4", false))
	assert.False(t, coord.Connect("b", &mockConn{}, u1, "1.2.3.4", false))

	_, notify := coord.Disconnect("a")
	assert.False(t, notify, "a tab remains, no offline event")

	info, notify := coord.Disconnect("b")
	require.True(t, notify, "last tab closed, offline event due")
	assert.Equal(t, "u1", info.Identity.UserID)
	assert.Equal(t, "1.2.3.4", info.Origin)

	// Fresh reconnect announces again.
	assert.True(t, coord.Connect("c", &mockConn{}, u1, "1.2.3.4", false))
}

func TestCoordinatorAnonymousLifecycle(t *testing.T) {
	coord, _ := newCoordinator(t)

	assert.True(t, coord.Connect("x", &mockConn{}, presence.Anonymous, "5.6.7.8", false))
	assert.False(t, coord.Connect("y", &mockConn{}, presence.Anonymous, "5.6.7.8", false))

	_, notify := coord.Disconnect("x")
	assert.False(t, notify)
	info, notify := coord.Disconnect("y")
	require.True(t, notify)
	assert.True(t, info.Identity.IsAnonymous())

	assert.True(t, coord.Connect("z", &mockConn{}, presence.Anonymous, "5.6.7.8", false))
}

// A reconnect reusing its ClientID keeps the pairing occupied the
// whole time: no offline event was broadcast, so a second online event
// must not be either.
func TestCoordinatorReconnectSameClientIDAnnouncesOnce(t *testing.T) {
	coord, _ := newCoordinator(t)
	u1 := presence.User("u1")

	assert.True(t, coord.Connect("a", &mockConn{}, u1, "1.2.3.4", false))
	assert.False(t, coord.Connect("a", &mockConn{}, u1, "1.2.3.4", false),
		"replacement of the pair's only connection must not re-announce")

	info, notify := coord.Disconnect("a")
	require.True(t, notify, "replacement was the last connection of the pair")
	assert.Equal(t, "u1", info.Identity.UserID)
}

func TestCoordinatorDistinctOriginsAnnounceSeparately(t *testing.T) {
	coord, _ := newCoordinator(t)
	u1 := presence.User("u1")

	assert.True(t, coord.Connect("a", &mockConn{}, u1, "1.1.1.1", false))
	assert.True(t, coord.Connect("b", &mockConn{}, u1, "2.2.2.2", false),
		"same user from a new origin is a new presence event")
}

func TestCoordinatorDisconnectUnknownClient(t *testing.T) {
	coord, _ := newCoordinator(t)

	_, notify := coord.Disconnect("ghost")
	assert.False(t, notify)
}

func TestCoordinatorSuppressedWhenFlagStillSet(t *testing.T) {
	coord, reg := newCoordinator(t)
	u1 := presence.User("u1")

	assert.True(t, coord.Connect("a", &mockConn{}, u1, "1.2.3.4", false))

	// Simulate a flag that survived (e.g. marked by another path): a
	// fresh first connection must not double-announce.
	reg.Unregister("a")
	reg.MarkNotified(u1, "1.2.3.4")
	assert.False(t, coord.Connect("b", &mockConn{}, u1, "1.2.3.4", false))
}
