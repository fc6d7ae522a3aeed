// Copyright 2024 The bridgelua Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package event defines the work items processed by a runtime's
// event pump. Events carry their own VM reference and are only
// updated from the pump goroutine while the runtime lock is held.
package event

import (
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/atomic"
)

type Event interface {
	Valid() bool

	Update(elapse time.Duration) error

	Continue() bool

	Priority() int
}

// Base provides default behavior for one-shot events.
type Base struct{}

func (Base) Valid() bool {
	return true
}

func (Base) Priority() int {
	return 1
}

func (Base) Update(time.Duration) error {
	return nil
}

func (Base) Continue() bool {
	return false
}

type Sequence []Event

func (s Sequence) Len() int {
	return len(s)
}

func (s Sequence) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s Sequence) Less(i, j int) bool {
	return s[i].Priority() < s[j].Priority()
}

// TimerEvent fires a Lua callback after Delay, and keeps firing
// every Period when Period is non-zero. The callback receives the
// timer handle first when one was exposed to the script, followed
// by Arguments. A looping callback returning false stops the loop.
type TimerEvent struct {
	Base
	active        atomic.Bool
	Delay, Period time.Duration
	VM            *lua.LState
	Func          *lua.LFunction
	Arguments     []lua.LValue
	self          *lua.LTable
}

func (e *TimerEvent) Load() bool {
	return e.active.Load()
}

func (e *TimerEvent) Store(value bool) {
	e.active.Store(value)
}

func (e *TimerEvent) Valid() bool {
	return e.Load()
}

func (e *TimerEvent) Continue() bool {
	if !e.Load() {
		return false
	}
	return e.Delay > 0 || e.Period > 0
}

func (e *TimerEvent) Update(elapse time.Duration) error {
	e.Delay -= elapse
	if e.Delay > 0 {
		return nil
	}
	e.VM.Push(e.Func)
	nargs := len(e.Arguments)
	if e.self != nil {
		e.VM.Push(e.self)
		nargs++
	}
	for _, argument := range e.Arguments {
		e.VM.Push(argument)
	}
	if err := e.VM.PCall(nargs, 1, nil); err != nil {
		e.Store(false)
		return err
	}
	ret := e.VM.Get(-1)
	e.VM.Pop(1)
	if e.Period <= 0 {
		e.Store(false)
	} else if ret == lua.LFalse {
		e.Store(false)
	} else {
		e.Delay = e.Period
	}
	return nil
}

func (e *TimerEvent) Stop() {
	e.Store(false)
}

// LuaValue exposes the timer to the script as a table with
// stop/valid methods, backed by the event through its metatable.
func (e *TimerEvent) LuaValue() lua.LValue {
	if e.self != nil {
		return e.self
	}
	e.self = e.VM.SetFuncs(e.VM.CreateTable(0, len(timerFuncs)), timerFuncs)
	e.self.Metatable = &lua.LUserData{Value: e}
	return e.self
}

var timerFuncs = map[string]lua.LGFunction{
	"stop":  timerStop,
	"valid": timerValid,
}

func checkTimerEvent(l *lua.LState, n int) *TimerEvent {
	if self := l.CheckTable(n); self != nil {
		if data, ok := self.Metatable.(*lua.LUserData); ok {
			if e, ok := data.Value.(*TimerEvent); ok {
				return e
			}
		}
	}
	l.ArgError(n, "expect timer")
	return nil
}

func timerStop(l *lua.LState) int {
	if e := checkTimerEvent(l, 1); e != nil {
		e.Stop()
	}
	return 0
}

func timerValid(l *lua.LState) int {
	if e := checkTimerEvent(l, 1); e != nil {
		l.Push(lua.LBool(e.Load()))
		return 1
	}
	return 0
}
