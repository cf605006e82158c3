package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/cory-johannsen/daguai/internal/game/cards"
	"github.com/cory-johannsen/daguai/internal/game/rules"
)

func cardToLua(L *lua.LState, c cards.Card) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("value", lua.LNumber(c.Value))
	t.RawSetString("suit", lua.LNumber(c.Suit))
	t.RawSetString("deckIndex", lua.LNumber(c.DeckIndex))
	return t
}

func cardsToLua(L *lua.LState, cs []cards.Card) *lua.LTable {
	t := L.CreateTable(len(cs), 0)
	for _, c := range cs {
		t.Append(cardToLua(L, c))
	}
	return t
}

func intField(t *lua.LTable, key string) (int, error) {
	n, ok := t.RawGetString(key).(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("field %q is not a number", key)
	}
	return int(n), nil
}

func cardFromLua(lv lua.LValue) (cards.Card, error) {
	t, ok := lv.(*lua.LTable)
	if !ok {
		return cards.Card{}, fmt.Errorf("card is %s, not a table", lv.Type())
	}
	var c cards.Card
	var err error
	if c.Value, err = intField(t, "value"); err != nil {
		return cards.Card{}, err
	}
	if c.Suit, err = intField(t, "suit"); err != nil {
		return cards.Card{}, err
	}
	if c.DeckIndex, err = intField(t, "deckIndex"); err != nil {
		return cards.Card{}, err
	}
	return c, nil
}

// cardsFromLua converts a Lua array of cards. nil yields nil.
func cardsFromLua(lv lua.LValue) ([]cards.Card, error) {
	if lv == lua.LNil {
		return nil, nil
	}
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("card list is %s, not a table", lv.Type())
	}
	out := make([]cards.Card, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		c, err := cardFromLua(t.RawGetInt(i))
		if err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func stringsToLua(L *lua.LState, ss []string) *lua.LTable {
	t := L.CreateTable(len(ss), 0)
	for _, s := range ss {
		t.Append(lua.LString(s))
	}
	return t
}

func handsToLua(L *lua.LState, hands [][]cards.Card) *lua.LTable {
	t := L.CreateTable(len(hands), 0)
	for _, h := range hands {
		t.Append(cardsToLua(L, h))
	}
	return t
}

func tributesToLua(L *lua.LState, ts rules.TributeSet) *lua.LTable {
	t := L.CreateTable(len(ts), 0)
	for _, tr := range ts {
		e := L.NewTable()
		e.RawSetString("giver", lua.LString(tr.Giver))
		e.RawSetString("receiver", lua.LString(tr.Receiver))
		e.RawSetString("giverSent", lua.LBool(tr.GiverSent))
		e.RawSetString("receiverSent", lua.LBool(tr.ReceiverSent))
		t.Append(e)
	}
	return t
}

func tributesFromLua(lv lua.LValue) (rules.TributeSet, error) {
	if lv == lua.LNil {
		return nil, nil
	}
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("tributes is %s, not a table", lv.Type())
	}
	out := make(rules.TributeSet, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		e, ok := t.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("tribute %d is not a table", i)
		}
		out = append(out, rules.Tribute{
			Giver:        lua.LVAsString(e.RawGetString("giver")),
			Receiver:     lua.LVAsString(e.RawGetString("receiver")),
			GiverSent:    lua.LVAsBool(e.RawGetString("giverSent")),
			ReceiverSent: lua.LVAsBool(e.RawGetString("receiverSent")),
		})
	}
	return out, nil
}

func seatsFromLua(lv lua.LValue) ([]rules.Seat, error) {
	t, ok := lv.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("seats is %s, not a table", lv.Type())
	}
	out := make([]rules.Seat, 0, t.Len())
	for i := 1; i <= t.Len(); i++ {
		e, ok := t.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("seat %d is not a table", i)
		}
		size, err := intField(e, "handSize")
		if err != nil {
			return nil, fmt.Errorf("seat %d: %w", i, err)
		}
		last, err := cardsFromLua(e.RawGetString("lastPlayed"))
		if err != nil {
			return nil, fmt.Errorf("seat %d: %w", i, err)
		}
		out = append(out, rules.Seat{
			Username:   lua.LVAsString(e.RawGetString("username")),
			HandSize:   size,
			LastPlayed: last,
		})
	}
	return out, nil
}
