package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-quiz-service/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	cap    int
	events []domain.Event
	closed bool
}

func (c *fakeConn) Send(event domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.cap > 0 && len(c.events) >= c.cap) {
		return false
	}
	c.events = append(c.events, event)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) received() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

func TestBroadcastScopedToSession(t *testing.T) {
	h := New(nil)
	a, b, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Register(Registration{ConnID: "a", SessionID: 1, Role: domain.RolePresenter}, a)
	h.Register(Registration{ConnID: "b", SessionID: 1, Role: domain.RoleParticipant, ParticipantID: 7}, b)
	h.Register(Registration{ConnID: "c", SessionID: 2, Role: domain.RolePresenter}, other)

	h.Broadcast(1, domain.Event{Type: domain.EvtQuizStarted, SessionID: 1, Seq: 1})

	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)
	assert.Empty(t, other.received())
}

func TestBroadcastPreservesOrder(t *testing.T) {
	h := New(nil)
	c := &fakeConn{}
	h.Register(Registration{ConnID: "a", SessionID: 1, Role: domain.RolePresenter}, c)

	for seq := uint64(1); seq <= 5; seq++ {
		h.Broadcast(1, domain.Event{Type: domain.EvtNextQuestion, SessionID: 1, Seq: seq})
	}

	got := c.received()
	require.Len(t, got, 5)
	for i, evt := range got {
		assert.Equal(t, uint64(i+1), evt.Seq)
	}
}

func TestSlowConnectionIsSevered(t *testing.T) {
	h := New(nil)
	slow := &fakeConn{cap: 1}
	fast := &fakeConn{}
	h.Register(Registration{ConnID: "slow", SessionID: 1, Role: domain.RoleParticipant, ParticipantID: 3}, slow)
	h.Register(Registration{ConnID: "fast", SessionID: 1, Role: domain.RolePresenter}, fast)

	h.Broadcast(1, domain.Event{Type: domain.EvtAnswerTallyUpdated, Seq: 1})
	h.Broadcast(1, domain.Event{Type: domain.EvtAnswerTallyUpdated, Seq: 2})
	h.Broadcast(1, domain.Event{Type: domain.EvtAnswerTallyUpdated, Seq: 3})

	assert.True(t, slow.closed)
	assert.Len(t, fast.received(), 3)
	assert.Equal(t, 1, h.Connections(1))
	assert.Equal(t, 0, h.ParticipantConnections(1, 3))
}

func TestUnregisterIdempotent(t *testing.T) {
	h := New(nil)
	h.Register(Registration{ConnID: "a", SessionID: 4, Role: domain.RoleParticipant, ParticipantID: 9}, &fakeConn{})

	reg, ok := h.Unregister("a")
	require.True(t, ok)
	assert.Equal(t, int64(9), reg.ParticipantID)

	_, ok = h.Unregister("a")
	assert.False(t, ok)
	assert.Equal(t, 0, h.Connections(4))
}

func TestUnicastTargetsOneConnection(t *testing.T) {
	h := New(nil)
	a, b := &fakeConn{}, &fakeConn{}
	h.Register(Registration{ConnID: "a", SessionID: 1, Role: domain.RolePresenter}, a)
	h.Register(Registration{ConnID: "b", SessionID: 1, Role: domain.RolePresenter}, b)

	assert.True(t, h.Unicast("b", domain.Event{Type: domain.EvtPong}))
	assert.False(t, h.Unicast("missing", domain.Event{Type: domain.EvtPong}))
	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}

func TestParticipantConnectionsCountsTabs(t *testing.T) {
	h := New(nil)
	h.Register(Registration{ConnID: "tab1", SessionID: 1, Role: domain.RoleParticipant, ParticipantID: 5}, &fakeConn{})
	h.Register(Registration{ConnID: "tab2", SessionID: 1, Role: domain.RoleParticipant, ParticipantID: 5}, &fakeConn{})
	h.Register(Registration{ConnID: "other", SessionID: 1, Role: domain.RoleParticipant, ParticipantID: 6}, &fakeConn{})

	assert.Equal(t, 2, h.ParticipantConnections(1, 5))
	h.Unregister("tab1")
	assert.Equal(t, 1, h.ParticipantConnections(1, 5))
}

func TestConcurrentBroadcastAndRegister(t *testing.T) {
	h := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		id := string(rune('a' + i))
		go func() {
			defer wg.Done()
			h.Register(Registration{ConnID: id, SessionID: 1, Role: domain.RolePresenter}, &fakeConn{})
		}()
		go func() {
			defer wg.Done()
			h.Broadcast(1, domain.Event{Type: domain.EvtPauseTimer})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, h.Connections(1))
}
