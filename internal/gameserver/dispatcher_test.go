package gameserver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/daguai/internal/game/identity"
	"github.com/cory-johannsen/daguai/internal/protocol"
)

func setupTwo(t *testing.T, h *harness) (a, b identity.Token) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.CreateRoom(ctx, "R", 0)
	require.NoError(t, err)
	ra, err := h.svc.Join(ctx, "R", identity.None, "A")
	require.NoError(t, err)
	rb, err := h.svc.Join(ctx, "R", identity.None, "B")
	require.NoError(t, err)
	return ra.UID, rb.UID
}

func TestDispatch_MalformedFrameRepliesToSender(t *testing.T) {
	h := newHarness(t, false)
	rec := &recorder{}
	peer := h.dispatcher.Connect(rec)

	h.dispatcher.Dispatch(context.Background(), peer, []byte("{not json"))
	msg := rec.waitFor(t, protocol.TypeError)
	assert.Equal(t, "malformed message", msg["message"])
}

func TestDispatch_UnknownRoomRepliesToSender(t *testing.T) {
	h := newHarness(t, false)
	rec := &recorder{}
	peer := h.dispatcher.Connect(rec)

	h.dispatcher.Dispatch(context.Background(), peer, frame(t, map[string]any{"type": "getUpdate", "uid": 5, "roomId": "ghost"}))
	msg := rec.waitFor(t, protocol.TypeError)
	assert.Equal(t, "room ghost not found", msg["message"])
}

func TestDispatch_UnknownTypeRepliesToSender(t *testing.T) {
	h := newHarness(t, false)
	rec := &recorder{}
	peer := h.dispatcher.Connect(rec)

	h.dispatcher.Dispatch(context.Background(), peer, frame(t, map[string]any{"type": "dance", "roomId": "R"}))
	msg := rec.waitFor(t, protocol.TypeError)
	assert.Equal(t, "unknown message type: dance", msg["message"])
}

func TestDispatch_CheckBeforeStart(t *testing.T) {
	h := newHarness(t, false)
	a, _ := setupTwo(t, h)
	rec := &recorder{}
	peer := h.dispatcher.Connect(rec)

	h.dispatcher.Dispatch(context.Background(), peer, frame(t, map[string]any{"type": "check", "uid": int64(a), "roomId": "R", "playedHand": []any{}}))
	msg := rec.waitFor(t, protocol.TypeCheckError)
	assert.Equal(t, "no game in progress", msg["err"])
}

func TestDispatch_PlayBroadcastsProjections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	a, b := setupTwo(t, h)
	recA, recB := &recorder{}, &recorder{}
	peerA, peerB := h.dispatcher.Connect(recA), h.dispatcher.Connect(recB)
	h.dispatcher.Dispatch(ctx, peerA, frame(t, map[string]any{"type": "getUpdate", "uid": int64(a), "roomId": "R"}))
	h.dispatcher.Dispatch(ctx, peerB, frame(t, map[string]any{"type": "getUpdate", "uid": int64(b), "roomId": "R"}))

	require.NoError(t, h.svc.Start(ctx, "R", a))
	recA.waitFor(t, protocol.TypeUpdate)

	view, err := h.svc.Snapshot(ctx, "R", a)
	require.NoError(t, err)
	require.Equal(t, 0, view.CurrentPlayer, "player one leads")
	lead := view.MyHand[0]

	h.dispatcher.Dispatch(ctx, peerA, frame(t, map[string]any{
		"type":       "play",
		"uid":        int64(a),
		"roomId":     "R",
		"playedHand": []any{map[string]any{"value": lead.Value, "suit": lead.Suit, "deckIndex": lead.DeckIndex}},
	}))

	require.Eventually(t, func() bool {
		v, err := h.svc.Snapshot(ctx, "R", b)
		return err == nil && v.CurrentPlayer == 1 && len(v.LastPlayCards) == 1
	}, time.Second, 5*time.Millisecond)

	after, err := h.svc.Snapshot(ctx, "R", a)
	require.NoError(t, err)
	assert.Len(t, after.MyHand, 26)
	assert.Equal(t, lead, after.LastPlayCards[0])
	assert.NotContains(t, after.MyHand, lead)
}

func TestDispatch_IllegalPlayBroadcastsError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	a, b := setupTwo(t, h)
	recA, recB := &recorder{}, &recorder{}
	peerA, peerB := h.dispatcher.Connect(recA), h.dispatcher.Connect(recB)
	h.dispatcher.Dispatch(ctx, peerA, frame(t, map[string]any{"type": "getUpdate", "uid": int64(a), "roomId": "R"}))
	h.dispatcher.Dispatch(ctx, peerB, frame(t, map[string]any{"type": "getUpdate", "uid": int64(b), "roomId": "R"}))
	require.NoError(t, h.svc.Start(ctx, "R", a))

	h.dispatcher.Dispatch(ctx, peerB, frame(t, map[string]any{"type": "play", "uid": int64(b), "roomId": "R", "playedHand": []any{}}))

	assert.Equal(t, "not your turn", recA.waitFor(t, protocol.TypeError)["message"])
	assert.Equal(t, "not your turn", recB.waitFor(t, protocol.TypeError)["message"])
}

func TestDispatch_ExitClearsRoster(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	a, _ := setupTwo(t, h)
	rec := &recorder{}
	peer := h.dispatcher.Connect(rec)

	h.dispatcher.Dispatch(ctx, peer, frame(t, map[string]any{"type": "gameMessage", "message": "exit", "uid": int64(a), "roomId": "R"}))
	rec.waitFor(t, protocol.TypeReload)

	view, err := h.svc.Players(ctx, "R")
	require.NoError(t, err)
	assert.Empty(t, view.Players)
	assert.False(t, view.GameInProgress)
}

func TestDispatch_NewConnectionReplacesOld(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	a, _ := setupTwo(t, h)
	first, second := h.dispatcher.Connect(&recorder{}), h.dispatcher.Connect(&recorder{})

	h.dispatcher.Dispatch(ctx, first, frame(t, map[string]any{"type": "getUpdate", "uid": int64(a), "roomId": "R"}))
	h.dispatcher.Dispatch(ctx, second, frame(t, map[string]any{"type": "getUpdate", "uid": int64(a), "roomId": "R"}))

	assert.True(t, first.Conn().IsClosed())
	assert.False(t, second.Conn().IsClosed())

	r, err := h.registry.Get("R")
	require.NoError(t, err)
	bound, ok := r.Connection(a)
	require.True(t, ok)
	assert.Equal(t, second.Conn().ID(), bound.ID())
}

func TestDispatch_RebindsWhenRoomDroppedBinding(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	a, _ := setupTwo(t, h)
	peer := h.dispatcher.Connect(&recorder{})
	getUpdate := frame(t, map[string]any{"type": "getUpdate", "uid": int64(a), "roomId": "R"})
	h.dispatcher.Dispatch(ctx, peer, getUpdate)

	r, err := h.registry.Get("R")
	require.NoError(t, err)
	require.True(t, r.Unbind(a, peer.Conn()))

	h.dispatcher.Dispatch(ctx, peer, getUpdate)
	bound, ok := r.Connection(a)
	require.True(t, ok)
	assert.Same(t, peer.Conn(), bound)
}

func TestDisconnect_KeepsMembership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	a, _ := setupTwo(t, h)
	peer := h.dispatcher.Connect(&recorder{})
	h.dispatcher.Dispatch(ctx, peer, frame(t, map[string]any{"type": "getUpdate", "uid": int64(a), "roomId": "R"}))

	h.dispatcher.Disconnect(peer)

	r, err := h.registry.Get("R")
	require.NoError(t, err)
	_, ok := r.Connection(a)
	assert.False(t, ok)
	view, err := h.svc.Players(ctx, "R")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, view.Players)
	assert.Equal(t, 0, h.conns.Count())
}
