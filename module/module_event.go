package module

import (
	"time"

	"github.com/bridgelua/bridgelua/event"

	lua "github.com/yuin/gopher-lua"
)

// eventModule exposes delay and loop timers driven by the runtime
// event pump.
type eventModule struct {
	RuntimeModule
}

func EventModule(runtime Runtime) *eventModule {
	return &eventModule{
		RuntimeModule: RuntimeModule{
			Module: Module{
				name: "event",
			},
			runtime: runtime,
		},
	}
}

func (m *eventModule) Open() lua.LGFunction {
	return func(l *lua.LState) int {
		functions := map[string]lua.LGFunction{
			"loop":  m.loop,
			"delay": m.delay,
		}
		l.Push(l.SetFuncs(l.CreateTable(0, len(functions)), functions))
		return 1
	}
}

// delay schedules a one-shot callback after the given seconds.
func (m *eventModule) delay(l *lua.LState) int {
	sec := l.CheckNumber(1)
	fn := l.CheckFunction(2)
	if fn == nil {
		l.ArgError(2, "expects function")
		return 0
	}
	e := &event.TimerEvent{
		Delay:     time.Duration(float64(sec) * float64(time.Second)),
		Arguments: []lua.LValue{},
		Func:      fn,
		VM:        l,
	}
	e.Store(true)
	handle := e.LuaValue()
	m.runtime.EventQueue() <- e
	l.Push(handle)
	return 1
}

// loop schedules a periodic callback. The loop stops when the
// callback returns false or the handle is stopped.
func (m *eventModule) loop(l *lua.LState) int {
	sec := l.CheckNumber(1)
	fn := l.CheckFunction(2)
	if fn == nil {
		l.ArgError(2, "expects function")
		return 0
	}
	e := &event.TimerEvent{
		Delay:     time.Duration(float64(sec) * float64(time.Second)),
		Period:    time.Duration(float64(sec) * float64(time.Second)),
		Arguments: []lua.LValue{},
		Func:      fn,
		VM:        l,
	}
	e.Store(true)
	handle := e.LuaValue()
	m.runtime.EventQueue() <- e
	l.Push(handle)
	return 1
}
