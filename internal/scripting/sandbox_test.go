package scripting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/daguai/internal/scripting"
)

func TestNewSandbox_UnsafeLibsNil(t *testing.T) {
	s := scripting.NewSandbox(0)
	defer s.Close()
	for _, name := range []string{"os", "io", "debug"} {
		assert.Equal(t, lua.LNil, s.L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandbox_DangerousGlobalsNil(t *testing.T) {
	s := scripting.NewSandbox(0)
	defer s.Close()
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		assert.Equal(t, lua.LNil, s.L.GetGlobal(name), "expected %s to be nil", name)
	}
}

func TestNewSandbox_SafeLibsAvailable(t *testing.T) {
	s := scripting.NewSandbox(0)
	defer s.Close()
	err := s.Load("libs", `
		local x = math.sqrt(4)
		assert(x == 2.0, "math.sqrt failed")
		local s = string.upper("hello")
		assert(s == "HELLO", "string.upper failed")
		local t = {}
		table.insert(t, 1)
		assert(#t == 1, "table.insert failed")
	`)
	assert.NoError(t, err)
}

func TestSandbox_CallReturnsResults(t *testing.T) {
	s := scripting.NewSandbox(0)
	defer s.Close()
	require.NoError(t, s.Load("add", `function add(a, b) return a + b, a * b end`))

	before := s.L.GetTop()
	out, err := s.Call("add", 2, lua.LNumber(3), lua.LNumber(4))
	require.NoError(t, err)
	assert.Equal(t, []lua.LValue{lua.LNumber(7), lua.LNumber(12)}, out)
	assert.Equal(t, before, s.L.GetTop(), "stack is balanced after a call")
}

func TestNewSandbox_StartsWithEmptyStack(t *testing.T) {
	s := scripting.NewSandbox(0)
	defer s.Close()
	assert.Equal(t, 0, s.L.GetTop())
}

func TestSandbox_CallUndefined(t *testing.T) {
	s := scripting.NewSandbox(0)
	defer s.Close()
	_, err := s.Call("missing", 0)
	assert.Error(t, err)
}

func TestSandbox_InstructionLimitExceeded(t *testing.T) {
	s := scripting.NewSandbox(10)
	defer s.Close()
	assert.Error(t, s.Load("spin", `while true do end`))
}

func TestSandbox_BudgetResetsPerCall(t *testing.T) {
	s := scripting.NewSandbox(500)
	defer s.Close()
	require.NoError(t, s.Load("loop", `
		function work()
			local n = 0
			for i = 1, 20 do n = n + i end
			return n
		end
	`))
	for i := 0; i < 100; i++ {
		out, err := s.Call("work", 1)
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, lua.LNumber(210), out[0])
	}
}

func TestProperty_InstructionLimitAlwaysErrors(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 50).Draw(t, "limit")
		s := scripting.NewSandbox(limit)
		defer s.Close()
		if err := s.Load("spin", `while true do end`); err == nil {
			t.Fatalf("expected error with limit=%d but got nil", limit)
		}
	})
}
