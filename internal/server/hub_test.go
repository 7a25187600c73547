package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

func drain(session *Session) []string {
	var out []string
	for {
		select {
		case text := <-session.send:
			out = append(out, text)
		default:
			return out
		}
	}
}

func hubSession(hub *Hub) *Session {
	return NewSession(newFakeConn(), hub, testConfig())
}

func TestHubJoinQueuesWelcomeAndHistoryFirst(t *testing.T) {
	hub := newTestHub(t)
	require.NoError(t, hub.AppendAndBroadcast("earlier"))

	alice := hubSession(hub)
	require.NoError(t, hub.Join(alice, "alice", true))

	assert.Equal(t, []string{
		protocol.WelcomeCreated("alice"),
		"You have 1 old messages\nearlier\n",
	}, drain(alice))
}

func TestHubJoinNotifiesOthersOnly(t *testing.T) {
	hub := newTestHub(t)
	alice, bob := hubSession(hub), hubSession(hub)
	require.NoError(t, hub.Join(alice, "alice", true))
	drain(alice)

	require.NoError(t, hub.Join(bob, "bob", false))

	assert.Equal(t, []string{"bob has joined the room"}, drain(alice))
	assert.Equal(t, []string{protocol.WelcomeBack("bob"), "You have 0 old messages\n"}, drain(bob))
	assert.Equal(t, 0, hub.History().Len())
}

func TestHubJoinRefusesTakenName(t *testing.T) {
	hub := newTestHub(t)
	first, second := hubSession(hub), hubSession(hub)
	require.NoError(t, hub.Join(first, "alice", true))

	assert.ErrorIs(t, hub.Join(second, "alice", false), ErrUsernameTaken)
	assert.Empty(t, drain(second))
	got, _ := hub.Sessions().Lookup("alice")
	assert.Same(t, first, got)
}

func TestHubAppendAndBroadcastReachesEveryone(t *testing.T) {
	hub := newTestHub(t)
	alice, bob := hubSession(hub), hubSession(hub)
	require.NoError(t, hub.Join(alice, "alice", true))
	require.NoError(t, hub.Join(bob, "bob", true))
	drain(alice)
	drain(bob)

	require.NoError(t, hub.AppendAndBroadcast("[ alice ] : hi"))

	assert.Equal(t, []string{"[ alice ] : hi"}, drain(alice))
	assert.Equal(t, []string{"[ alice ] : hi"}, drain(bob))
	assert.Equal(t, []string{"[ alice ] : hi"}, hub.History().Snapshot())
}

func TestHubAnnounceIsNotPersisted(t *testing.T) {
	hub := newTestHub(t)
	alice := hubSession(hub)
	require.NoError(t, hub.Join(alice, "alice", true))
	drain(alice)

	hub.Announce("maintenance at noon")

	assert.Equal(t, []string{"maintenance at noon"}, drain(alice))
	assert.Zero(t, hub.History().Len())
}

func TestHubLeaveAnnouncesOnce(t *testing.T) {
	hub := newTestHub(t)
	alice, bob := hubSession(hub), hubSession(hub)
	require.NoError(t, hub.Join(alice, "alice", true))
	require.NoError(t, hub.Join(bob, "bob", true))
	drain(alice)

	assert.True(t, hub.Leave(bob))
	assert.False(t, hub.Leave(bob))

	assert.Equal(t, []string{"bob has left the chat room."}, drain(alice))
	assert.False(t, hub.IsRegistered("bob"))
}

func TestHubLeaveIgnoresUnregisteredSession(t *testing.T) {
	hub := newTestHub(t)
	alice, stranger := hubSession(hub), hubSession(hub)
	require.NoError(t, hub.Join(alice, "alice", true))
	drain(alice)

	assert.False(t, hub.Leave(stranger))
	assert.Empty(t, drain(alice))
}

func TestHubDropsSessionWhoseQueueIsFull(t *testing.T) {
	hub := newTestHub(t)
	cfg := testConfig()
	cfg.SendBuffer = 2
	slow := NewSession(newFakeConn(), hub, cfg)
	alice := hubSession(hub)

	require.NoError(t, hub.Join(alice, "alice", true))
	drain(alice)
	require.NoError(t, hub.Join(slow, "slow", true)) // welcome + history fill the queue
	assert.Equal(t, []string{"New user slow has joined the room"}, drain(alice))

	require.NoError(t, hub.AppendAndBroadcast("one"))

	assert.False(t, hub.IsRegistered("slow"))
	assert.Equal(t, StateClosed, slow.State())
	assert.True(t, slow.conn.(*fakeConn).isClosed())
	assert.Equal(t, []string{"one", "slow has left the chat room."}, drain(alice))
}

func TestHubJoinFailsWhenHistoryBlockDoesNotFit(t *testing.T) {
	hub := newTestHub(t)
	cfg := testConfig()
	cfg.SendBuffer = 1
	cramped := NewSession(newFakeConn(), hub, cfg)
	alice := hubSession(hub)
	require.NoError(t, hub.Join(alice, "alice", true))
	drain(alice)

	err := hub.Join(cramped, "cramped", true)

	require.ErrorIs(t, err, errQueueFull)
	assert.False(t, hub.IsRegistered("cramped"))
	assert.Empty(t, drain(alice))
	assert.False(t, hub.Leave(cramped))

	// The name is free again for a session that can take the records.
	require.NoError(t, hub.Join(hubSession(hub), "cramped", false))
}

func TestHubHistoryStaysBounded(t *testing.T) {
	hub := newTestHub(t)
	for i := 0; i < 30; i++ {
		require.NoError(t, hub.AppendAndBroadcast(fmt.Sprintf("m%d", i)))
	}

	snapshot := hub.History().Snapshot()
	assert.Len(t, snapshot, 15)
	assert.Equal(t, "m15", snapshot[0])
}
