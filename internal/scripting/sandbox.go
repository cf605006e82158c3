// Package scripting runs rules engines written in Lua inside a GopherLua
// sandbox. It has no knowledge of rooms or connections; it only implements
// the rules.Factory contract.
package scripting

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the maximum number of Lua opcodes allowed per
// call into a script when the manifest configures none.
const DefaultInstructionLimit = 100_000

// countingContext is a context.Context that cancels itself after Done() has
// been called limit times. GopherLua's mainLoopWithContext calls Done() once
// per opcode, making this an exact instruction-count limit.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

// Done returns the underlying cancellation channel. Each call decrements the
// remaining counter; when it reaches zero the cancel function fires,
// terminating the Lua VM on the next opcode boundary.
func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

// newCountingContext returns a context that cancels after limit calls to Done().
// Precondition: limit > 0.
func newCountingContext(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{
		Context:   base,
		cancel:    cancel,
		remaining: rem,
	}, cancel
}

// Sandbox is a restricted Lua VM whose every entry point runs under a fresh
// instruction budget. A Sandbox is not safe for concurrent use.
type Sandbox struct {
	L     *lua.LState
	limit int
}

// NewSandbox creates a VM with:
//   - Only safe stdlib loaded: base, table, string, math
//   - Dangerous globals removed: dofile, loadfile, load, collectgarbage, require
//   - Each Load or Call limited to at most instLimit Lua opcodes
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: The caller owns the Sandbox and must call Close when done.
func NewSandbox(instLimit int) *Sandbox {
	limit := instLimit
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	// the Open* calls leave their module tables on the stack
	L.SetTop(0)

	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require", "print"} {
		L.SetGlobal(name, lua.LNil)
	}

	return &Sandbox{L: L, limit: limit}
}

// Load compiles and runs src as chunk name.
func (s *Sandbox) Load(name, src string) error {
	fn, err := s.L.Load(strings.NewReader(src), name)
	if err != nil {
		return fmt.Errorf("scripting: compiling %q: %w", name, err)
	}
	if _, err := s.call(fn, 0); err != nil {
		return fmt.Errorf("scripting: running %q: %w", name, err)
	}
	return nil
}

// Call invokes the global function fn with args and returns nret results.
// A missing function is an error.
func (s *Sandbox) Call(fn string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	f, ok := s.L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("scripting: function %q is not defined", fn)
	}
	return s.call(f, nret, args...)
}

func (s *Sandbox) call(fn *lua.LFunction, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	ctx, cancel := newCountingContext(s.limit)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	top := s.L.GetTop()
	if err := s.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		s.L.SetTop(top)
		return nil, err
	}
	out := make([]lua.LValue, nret)
	for i := 0; i < nret; i++ {
		out[i] = s.L.Get(top + 1 + i)
	}
	s.L.SetTop(top)
	return out, nil
}

// Close releases the VM.
func (s *Sandbox) Close() {
	s.L.Close()
}
