package scripting

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/daguai/internal/game/cards"
	"github.com/cory-johannsen/daguai/internal/game/gameerr"
	"github.com/cory-johannsen/daguai/internal/game/rules"
)

// rejectKey marks a Lua error value raised by reject(msg) as a rule failure.
const rejectKey = "rejected"

// Rules is a rules.Factory backed by a Lua script. Every session gets its own
// sandboxed VM, so sessions in different rooms never share interpreter state.
type Rules struct {
	manifest *Manifest
	logger   *zap.Logger
}

// NewRules validates m by loading it once and returns the factory.
//
// Precondition: m and logger must be non-nil.
// Postcondition: Returns a factory or the script's load error.
func NewRules(m *Manifest, logger *zap.Logger) (*Rules, error) {
	sb, err := newRulesSandbox(m)
	if err != nil {
		return nil, err
	}
	sb.Close()
	logger.Info("ruleset loaded", zap.String("ruleset", m.ID), zap.String("name", m.Name))
	return &Rules{manifest: m, logger: logger}, nil
}

// Manifest returns the loaded ruleset description.
func (r *Rules) Manifest() *Manifest { return r.manifest }

func newRulesSandbox(m *Manifest) (*Sandbox, error) {
	sb := NewSandbox(m.InstructionLimit)
	sb.L.SetGlobal("reject", sb.L.NewFunction(func(L *lua.LState) int {
		t := L.NewTable()
		t.RawSetString(rejectKey, lua.LString(L.CheckString(1)))
		L.Error(t, 0)
		return 0
	}))
	if err := sb.Load(m.ID, m.Source); err != nil {
		sb.Close()
		return nil, err
	}
	return sb, nil
}

// NewSession deals a match into a fresh VM.
func (r *Rules) NewSession(d rules.Deal) (rules.Session, error) {
	if len(d.Players) != len(d.Hands) {
		return nil, fmt.Errorf("scripting: %d players but %d hands", len(d.Players), len(d.Hands))
	}
	sb, err := newRulesSandbox(r.manifest)
	if err != nil {
		return nil, err
	}
	s := &session{sb: sb, ruleset: r.manifest.ID, logger: r.logger}
	L := sb.L
	if _, err := sb.Call("setup", 0, stringsToLua(L, d.Players), handsToLua(L, d.Hands), tributesToLua(L, d.Tributes)); err != nil {
		sb.Close()
		return nil, s.classify("setup", err)
	}
	return s, nil
}

type session struct {
	sb      *Sandbox
	ruleset string
	logger  *zap.Logger
}

// classify turns a Lua failure into a rule rejection or an internal error.
func (s *session) classify(fn string, err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		if t, ok := apiErr.Object.(*lua.LTable); ok {
			if msg, ok := t.RawGetString(rejectKey).(lua.LString); ok {
				return gameerr.IllegalPlay(string(msg))
			}
		}
	}
	s.logger.Error("ruleset script failed",
		zap.String("ruleset", s.ruleset),
		zap.String("function", fn),
		zap.Error(err),
	)
	return gameerr.Internal(err, "rules engine failure")
}

func (s *session) call(fn string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	out, err := s.sb.Call(fn, nret, args...)
	if err != nil {
		return nil, s.classify(fn, err)
	}
	return out, nil
}

// read calls an accessor that cannot fail for a well-formed script. Script
// bugs are logged by classify and the zero value is returned.
func (s *session) read(fn string, args ...lua.LValue) lua.LValue {
	out, err := s.call(fn, 1, args...)
	if err != nil {
		return lua.LNil
	}
	return out[0]
}

func (s *session) internal(fn string, err error) error {
	return s.classify(fn, fmt.Errorf("%s returned a malformed value: %w", fn, err))
}

func (s *session) Validate(player string, play []cards.Card) (rules.PlayDescriptor, error) {
	out, err := s.call("validate", 1, lua.LString(player), cardsToLua(s.sb.L, play))
	if err != nil {
		return rules.PlayDescriptor{}, err
	}
	kind, _ := out[0].(lua.LNumber)
	return rules.PlayDescriptor{Play: rules.PlayType(kind), Cards: cards.Clone(play)}, nil
}

func (s *session) Advance(player string, play []cards.Card) (rules.AdvanceResult, error) {
	out, err := s.call("advance", 1, lua.LString(player), cardsToLua(s.sb.L, play))
	if err != nil {
		return rules.AdvanceResult{}, err
	}
	state, _ := out[0].(lua.LNumber)
	return rules.AdvanceResult{State: rules.State(state)}, nil
}

func (s *session) SendTribute(player string, selected []cards.Card) (rules.TributeResult, error) {
	out, err := s.call("send_tribute", 3, lua.LString(player), cardsToLua(s.sb.L, selected))
	if err != nil {
		return rules.TributeResult{}, err
	}
	var res rules.TributeResult
	if name, ok := out[0].(lua.LString); ok {
		res.Receiver = string(name)
	}
	if res.NewHand, err = cardsFromLua(out[1]); err != nil {
		return rules.TributeResult{}, s.internal("send_tribute", err)
	}
	if res.Tributes, err = tributesFromLua(out[2]); err != nil {
		return rules.TributeResult{}, s.internal("send_tribute", err)
	}
	return res, nil
}

func (s *session) ValidateTribute(player string, selected []cards.Card) error {
	_, err := s.call("validate_tribute", 0, lua.LString(player), cardsToLua(s.sb.L, selected))
	return err
}

func (s *session) IsPassOK() bool {
	return lua.LVAsBool(s.read("is_pass_ok"))
}

func (s *session) Tributes() rules.TributeSet {
	ts, err := tributesFromLua(s.read("tributes"))
	if err != nil {
		_ = s.internal("tributes", err)
		return nil
	}
	return ts
}

func (s *session) CurrentPlayer() int {
	n, _ := s.read("current_player").(lua.LNumber)
	return int(n)
}

func (s *session) LastPlay() []cards.Card {
	cs, err := cardsFromLua(s.read("last_play"))
	if err != nil {
		_ = s.internal("last_play", err)
		return nil
	}
	return cs
}

func (s *session) Seats() []rules.Seat {
	seats, err := seatsFromLua(s.read("seats"))
	if err != nil {
		_ = s.internal("seats", err)
		return nil
	}
	return seats
}

func (s *session) Hand(player string) []cards.Card {
	cs, err := cardsFromLua(s.read("hand", lua.LString(player)))
	if err != nil {
		_ = s.internal("hand", err)
		return nil
	}
	return cs
}

func (s *session) State() rules.State {
	n, _ := s.read("state").(lua.LNumber)
	return rules.State(n)
}

func (s *session) Close() {
	s.sb.Close()
}
