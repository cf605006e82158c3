package scripting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/daguai/internal/game/cards"
	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/rules"
	"github.com/cory-johannsen/daguai/internal/scripting"
)

func c(v, s int) cards.Card { return cards.Card{Value: v, Suit: s} }

func newFreeplay(t *testing.T) *scripting.Rules {
	t.Helper()
	m, err := scripting.BuiltinManifest("freeplay")
	require.NoError(t, err)
	r, err := scripting.NewRules(m, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func deal(t *testing.T, r *scripting.Rules, d rules.Deal) rules.Session {
	t.Helper()
	s, err := r.NewSession(d)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func twoPlayer(t *testing.T) rules.Session {
	return deal(t, newFreeplay(t), rules.Deal{
		Players: []string{"A", "B"},
		Hands: [][]cards.Card{
			{c(3, 1), c(5, 2)},
			{c(4, 1), c(6, 2), c(7, 3)},
		},
	})
}

func TestBuiltinManifest(t *testing.T) {
	m, err := scripting.BuiltinManifest("freeplay")
	require.NoError(t, err)
	assert.Equal(t, "freeplay", m.ID)
	assert.Equal(t, "Free play", m.Name)
	assert.NotEmpty(t, m.Source)

	_, err = scripting.BuiltinManifest("nope")
	assert.Error(t, err)
}

func TestLoadManifest_FromDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mini.lua"), []byte(`function setup() end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mini.yaml"), []byte("id: mini\nscript: mini.lua\ninstruction_limit: 50\n"), 0o644))

	m, err := scripting.LoadManifest(filepath.Join(dir, "mini.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mini", m.Name, "name defaults to id")
	assert.Equal(t, 50, m.InstructionLimit)
	assert.Equal(t, `function setup() end`, m.Source)
}

func TestLoadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: nameless\n"), 0o644))
	_, err := scripting.LoadManifest(path)
	assert.ErrorContains(t, err, "id is required")

	require.NoError(t, os.WriteFile(path, []byte("id: x\nscript: missing.lua\n"), 0o644))
	_, err = scripting.LoadManifest(path)
	assert.Error(t, err)
}

func TestNewRules_RejectsBrokenScript(t *testing.T) {
	_, err := scripting.NewRules(&scripting.Manifest{ID: "broken", Script: "x", Source: "function ("}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestSession_InitialView(t *testing.T) {
	s := twoPlayer(t)
	assert.Equal(t, 0, s.CurrentPlayer())
	assert.Empty(t, s.LastPlay())
	assert.False(t, s.IsPassOK())
	assert.Equal(t, rules.InProgress, s.State())
	assert.Equal(t, []cards.Card{c(3, 1), c(5, 2)}, s.Hand("A"))
	assert.Nil(t, s.Hand("nobody"))
	assert.Equal(t, []rules.Seat{
		{Username: "A", HandSize: 2},
		{Username: "B", HandSize: 3},
	}, s.Seats())
}

func TestSession_ValidateRejections(t *testing.T) {
	s := twoPlayer(t)
	tests := []struct {
		player string
		play   []cards.Card
		msg    string
	}{
		{"B", []cards.Card{c(4, 1)}, "not your turn"},
		{"A", []cards.Card{c(4, 1)}, "card not in hand"},
		{"A", nil, "you must lead"},
		{"Z", nil, "unknown player"},
	}
	for _, tc := range tests {
		_, err := s.Validate(tc.player, tc.play)
		require.Error(t, err)
		assert.Equal(t, gameerr.KindIllegalPlay, gameerr.KindOf(err))
		assert.Equal(t, tc.msg, gameerr.Message(err))
	}

	desc, err := s.Validate("A", []cards.Card{c(3, 1)})
	require.NoError(t, err)
	assert.NotEqual(t, rules.PlayPass, desc.Play)
}

func TestSession_PlayPassAndTrick(t *testing.T) {
	s := twoPlayer(t)

	res, err := s.Advance("A", []cards.Card{c(3, 1)})
	require.NoError(t, err)
	assert.Equal(t, rules.InProgress, res.State)
	assert.Equal(t, 1, s.CurrentPlayer())
	assert.Equal(t, []cards.Card{c(3, 1)}, s.LastPlay())
	assert.True(t, s.IsPassOK())

	desc, err := s.Validate("B", nil)
	require.NoError(t, err)
	assert.Equal(t, rules.PlayPass, desc.Play)

	_, err = s.Advance("B", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, s.CurrentPlayer())
	assert.Empty(t, s.LastPlay(), "trick clears when play returns to its leader")
	assert.False(t, s.IsPassOK())
	assert.Equal(t, []cards.Card{c(3, 1)}, s.Seats()[0].LastPlayed)
}

func TestSession_GameOverAndTributes(t *testing.T) {
	s := twoPlayer(t)
	_, err := s.Advance("A", []cards.Card{c(3, 1)})
	require.NoError(t, err)
	_, err = s.Advance("B", []cards.Card{c(4, 1)})
	require.NoError(t, err)
	res, err := s.Advance("A", []cards.Card{c(5, 2)})
	require.NoError(t, err)
	assert.Equal(t, rules.TeamOneWon, res.State)
	assert.Equal(t, rules.TeamOneWon, s.State())

	_, err = s.Advance("B", nil)
	assert.Equal(t, "the game is over", gameerr.Message(err))

	assert.Equal(t, rules.TributeSet{{Giver: "B", Receiver: "A"}}, s.Tributes())
}

func TestSession_TributeExchange(t *testing.T) {
	s := deal(t, newFreeplay(t), rules.Deal{
		Players:  []string{"A", "B"},
		Hands:    [][]cards.Card{{c(3, 1)}, {c(13, 4), c(2, 2)}},
		Tributes: rules.TributeSet{{Giver: "B", Receiver: "A"}},
	})

	assert.Equal(t, "you have no card to send", gameerr.Message(s.ValidateTribute("A", []cards.Card{c(3, 1)})))
	assert.Equal(t, "select exactly one card", gameerr.Message(s.ValidateTribute("B", nil)))
	require.NoError(t, s.ValidateTribute("B", []cards.Card{c(13, 4)}))

	res, err := s.SendTribute("B", []cards.Card{c(13, 4)})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Receiver)
	assert.Equal(t, []cards.Card{c(3, 1), c(13, 4)}, res.NewHand)
	assert.Equal(t, rules.TributeSet{{Giver: "B", Receiver: "A", GiverSent: true}}, res.Tributes)
	assert.False(t, res.Tributes.Complete())

	res, err = s.SendTribute("A", []cards.Card{c(3, 1)})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Receiver)
	assert.Equal(t, []cards.Card{c(2, 2), c(3, 1)}, res.NewHand)
	assert.True(t, res.Tributes.Complete())
	assert.Equal(t, []cards.Card{c(13, 4)}, s.Hand("A"))
}

func TestSession_ScriptFailureIsInternalAndLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	m := &scripting.Manifest{ID: "buggy", Script: "x", Source: `
		function setup() end
		function validate() local t = nil; return t.x end
	`}
	r, err := scripting.NewRules(m, zap.New(core))
	require.NoError(t, err)
	s, err := r.NewSession(rules.Deal{Players: []string{"A"}, Hands: [][]cards.Card{{}}})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Validate("A", nil)
	assert.Equal(t, gameerr.KindInternal, gameerr.KindOf(err))
	assert.Equal(t, "rules engine failure", gameerr.Message(err))
	assert.Equal(t, 1, logs.FilterMessage("ruleset script failed").Len())
}

func TestSession_RunawayScriptIsStopped(t *testing.T) {
	m := &scripting.Manifest{ID: "spin", Script: "x", InstructionLimit: 1000, Source: `
		function setup() end
		function validate() while true do end end
	`}
	r, err := scripting.NewRules(m, zaptest.NewLogger(t))
	require.NoError(t, err)
	s, err := r.NewSession(rules.Deal{Players: []string{"A"}, Hands: [][]cards.Card{{}}})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Validate("A", nil)
	assert.Equal(t, gameerr.KindInternal, gameerr.KindOf(err))
}

func TestNewSession_MismatchedDeal(t *testing.T) {
	_, err := newFreeplay(t).NewSession(rules.Deal{Players: []string{"A", "B"}, Hands: [][]cards.Card{{}}})
	assert.Error(t, err)
}
