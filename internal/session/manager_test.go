package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dapctl/internal/errors"
)

// TestNewSession_Limit verifies the root session limit is enforced.
func TestNewSession_Limit(t *testing.T) {
	h := newHarness(t, configDoneCaps)
	for i := 0; i < 3; i++ {
		_, err := h.m.NewSession("")
		require.NoError(t, err)
	}
	_, err := h.m.NewSession("")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSessionLimitReached))
}

// TestNewSession_IDs verifies ids are assigned in order and the first session is active.
func TestNewSession_IDs(t *testing.T) {
	h := newHarness(t, configDoneCaps)
	a, err := h.m.NewSession("a")
	require.NoError(t, err)
	b, err := h.m.NewSession("b")
	require.NoError(t, err)

	assert.Equal(t, 1, a.ID())
	assert.Equal(t, 2, b.ID())
	assert.Same(t, a, h.m.Active())
	assert.NotSame(t, a.Breakpoints(), b.Breakpoints(), "root sessions own their breakpoints")
}

// TestGetSession verifies lookup by id and by name.
func TestGetSession(t *testing.T) {
	h := newHarness(t, configDoneCaps)
	s, err := h.m.NewSession("api")
	require.NoError(t, err)
	_, err = h.m.NewSession("")
	require.NoError(t, err)

	got, err := h.m.GetSession(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = h.m.GetSession(42)
	assert.True(t, errors.HasCode(err, errors.CodeSessionNotFound))

	found, ok := h.m.FindSessionByName("api")
	require.True(t, ok)
	assert.Same(t, s, found)
	_, ok = h.m.FindSessionByName("web")
	assert.False(t, ok)

	assert.Equal(t, []string{"api"}, h.m.SessionNames())
	assert.Len(t, h.m.Sessions(), 2)
}

// TestSetActive verifies the active session can be changed.
func TestSetActive(t *testing.T) {
	h := newHarness(t, configDoneCaps)
	_, err := h.m.NewSession("")
	require.NoError(t, err)
	b, err := h.m.NewSession("")
	require.NoError(t, err)

	require.NoError(t, h.m.SetActive(b.ID()))
	assert.Same(t, b, h.m.Active())
	assert.True(t, errors.HasCode(h.m.SetActive(9), errors.CodeSessionNotFound))
}

// TestDestroyRootSession verifies connected and child sessions cannot be destroyed as roots.
func TestDestroyRootSession(t *testing.T) {
	h := newHarness(t, configDoneCaps)
	a := h.start()
	b, err := h.m.NewSession("")
	require.NoError(t, err)
	child, err := h.m.newChild(a, "")
	require.NoError(t, err)

	assert.True(t, errors.HasCode(h.m.DestroyRootSession(a.ID()), errors.CodeSessionConnected))
	assert.True(t, errors.HasCode(h.m.DestroyRootSession(child.ID()), errors.CodeNotRootSession))

	require.NoError(t, a.Stop())
	h.conns[0].Drain()
	require.NoError(t, h.m.DestroyRootSession(a.ID()))

	assert.Same(t, b, h.m.Active())
	_, err = h.m.GetSession(child.ID())
	assert.True(t, errors.HasCode(err, errors.CodeSessionNotFound))
	assert.Len(t, h.m.Sessions(), 1)
}

// TestDestroySession verifies a connected session is stopped before it is removed.
func TestDestroySession(t *testing.T) {
	h := newHarness(t, configDoneCaps, "disconnect")
	s := h.start()

	require.NoError(t, h.m.DestroySession(s.ID()))
	_, err := h.m.GetSession(s.ID())
	require.NoError(t, err, "removed only once disconnected")

	h.conns[0].Succeed(h.conns[0].Pending("disconnect")[0], nil)
	_, err = h.m.GetSession(s.ID())
	assert.True(t, errors.HasCode(err, errors.CodeSessionNotFound))
	assert.Nil(t, h.m.Active())
}

// TestUpdates verifies state changes signal the update channel.
func TestUpdates(t *testing.T) {
	h := newHarness(t, configDoneCaps)
	select {
	case <-h.m.Updates():
		t.Fatal("unexpected update before any change")
	default:
	}
	h.start()
	select {
	case <-h.m.Updates():
	default:
		t.Fatal("expected an update")
	}
}

// TestClose verifies Close asks every root session to disconnect and gives up at the deadline.
func TestClose(t *testing.T) {
	h := newHarness(t, configDoneCaps, "disconnect")
	s := h.start()
	_, err := h.m.NewSession("idle")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	h.m.Close(ctx)

	assert.Len(t, h.conns[0].Calls("disconnect"), 1)
	assert.True(t, s.Connected(), "still waiting for the adapter")
}

// TestClose_NothingConnected verifies Close returns at once when no session is connected.
func TestClose_NothingConnected(t *testing.T) {
	h := newHarness(t, configDoneCaps)
	_, err := h.m.NewSession("")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		h.m.Close(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}
