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

// Package bridgelua embeds a Lua interpreter and bridges
// script-backed data objects to native code. A Runtime owns one
// interpreter plus an event pump, and preloads the modules that
// expose host functionality to scripts. ViewModel and Widget
// associate native objects with per-instance Lua tables.
package bridgelua

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bridgelua/bridgelua/event"
	"github.com/bridgelua/bridgelua/luaconv"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Runtime drives a single interpreter. All VM access happens with
// the embedded lock held: the event pump takes it per tick, bridge
// operations take it per call.
type Runtime struct {
	sync.RWMutex
	logger *zap.Logger
	vm     *lua.LState
	wg     sync.WaitGroup

	script      string
	external    *sync.WaitGroup
	evaluate    func(interface{})
	preloads    map[string]Module
	auxlibs     map[string]lua.LGFunction
	globals     map[string]interface{}
	ctx         context.Context
	ctxCancelFn context.CancelFunc
	scripts     *ScriptModule
	eventQueue  chan event.Event
}

func NewRuntime(scripts *ScriptModule, options ...Option) *Runtime {
	logger, _ := zap.NewProduction()
	ctx, ctxCancelFn := context.WithCancel(context.Background())
	r := &Runtime{
		logger: logger,
		vm: lua.NewState(lua.Options{
			CallStackSize:       128,
			RegistrySize:        512,
			RegistryGrowStep:    128,
			SkipOpenLibs:        true,
			IncludeGoStackTrace: true,
		}),
		script:      "main",
		scripts:     scripts,
		ctx:         ctx,
		ctxCancelFn: ctxCancelFn,
		preloads:    make(map[string]Module),
		auxlibs:     make(map[string]lua.LGFunction),
		globals:     make(map[string]interface{}),
		eventQueue:  make(chan event.Event, 128),
	}
	for _, option := range options {
		option.apply(r)
	}
	scripts.attach(r)
	return r
}

// NewRuntimeWithConfig builds the interpreter from a Config instead
// of package defaults.
func NewRuntimeWithConfig(scripts *ScriptModule, config Config, options ...Option) *Runtime {
	logger, _ := zap.NewProduction()
	ctx, ctxCancelFn := context.WithCancel(context.Background())
	r := &Runtime{
		logger:      logger,
		vm:          lua.NewState(config.GetLuaOptions()),
		script:      config.GetScriptEntry(),
		scripts:     scripts,
		ctx:         ctx,
		ctxCancelFn: ctxCancelFn,
		preloads:    make(map[string]Module),
		auxlibs:     make(map[string]lua.LGFunction),
		globals:     make(map[string]interface{}),
		eventQueue:  make(chan event.Event, config.GetEventQueueSize()),
	}
	for _, option := range options {
		option.apply(r)
	}
	scripts.attach(r)
	return r
}

// EventQueue exposes the pump's inbox to modules.
func (r *Runtime) EventQueue() chan event.Event {
	return r.eventQueue
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *zap.Logger {
	return r.logger
}

// Startup opens the standard libraries, preloads auxlibs and
// modules, starts the event pump and requires the entry script.
func (r *Runtime) Startup() {
	stdlibs := map[string]lua.LGFunction{
		lua.BaseLibName:      lua.OpenBase,
		lua.TabLibName:       lua.OpenTable,
		lua.OsLibName:        lua.OpenOs,
		lua.IoLibName:        lua.OpenIo,
		lua.StringLibName:    lua.OpenString,
		lua.MathLibName:      lua.OpenMath,
		lua.CoroutineLibName: lua.OpenCoroutine,
		lua.LoadLibName:      r.scripts.OpenPackage(),
	}
	loadlibs := make([]string, 0, len(stdlibs))
	for name, lib := range stdlibs {
		r.vm.Push(r.vm.NewFunction(lib))
		r.vm.Push(lua.LString(name))
		r.vm.Call(1, 0)
		if len(name) > 0 {
			loadlibs = append(loadlibs, name)
		}
	}
	preloadlibs := make([]string, 0, len(r.preloads)+len(r.auxlibs)+1)
	preloadlibs = append(preloadlibs, "runtime")
	r.vm.PreloadModule("runtime", func(l *lua.LState) int {
		functions := map[string]lua.LGFunction{
			"exit": r.exit,
		}
		l.Push(l.SetFuncs(l.CreateTable(0, len(functions)), functions))
		return 1
	})
	for name, lib := range r.auxlibs {
		r.vm.PreloadModule(name, lib)
		preloadlibs = append(preloadlibs, name)
	}
	for name, module := range r.preloads {
		r.vm.PreloadModule(name, module.Open())
		preloadlibs = append(preloadlibs, name)
	}
	for name, value := range r.globals {
		r.vm.SetGlobal(name, luaconv.Value(r.vm, value))
	}
	r.logger.Debug("Runtime information",
		zap.Strings("load", loadlibs),
	)
	r.logger.Debug("Runtime information",
		zap.Strings("preload", preloadlibs),
	)
	r.wg.Add(1)
	go r.process()
	r.vm.SetContext(r.ctx)
	r.vm.Push(r.vm.GetGlobal("require"))
	r.vm.Push(lua.LString(r.script))
	if err := r.vm.PCall(1, lua.MultRet, nil); err != nil {
		defer r.ctxCancelFn()
		if r.evaluate == nil {
			r.logger.Error("script", zap.Error(err))
		} else {
			r.evaluate(err)
		}
	} else if r.evaluate != nil {
		if ret := r.vm.Get(-1); ret != lua.LNil {
			r.evaluate(luaconv.LuaValue(ret))
		}
	}
}

// Shutdown stops the event pump and closes the interpreter. Safe to
// call more than once.
func (r *Runtime) Shutdown() {
	r.ctxCancelFn()
}

// Wait blocks until the event pump exited.
func (r *Runtime) Wait() {
	r.wg.Wait()
}

type exitEvent struct {
	context.CancelFunc
	event.StateEvent
}

func (e *exitEvent) Update(elapse time.Duration) error {
	e.StateEvent.Stop()
	e.CancelFunc()
	return nil
}

func (r *Runtime) exit(l *lua.LState) int {
	r.eventQueue <- &exitEvent{
		CancelFunc: r.ctxCancelFn,
	}
	return 0
}

const eventTickInterval = time.Millisecond * 66

func (r *Runtime) process() {
	defer r.wg.Done()
	if r.external != nil {
		defer r.external.Done()
	}
	var e event.Event
	ticker := time.NewTicker(eventTickInterval)
	defer ticker.Stop()
	eventUpdateTime := time.Now()
	eventQueue := make(event.Sequence, 0)
	eventSwapQueue := make(event.Sequence, 0)

IncomingLoop:
	for {
		select {
		case <-r.ctx.Done():
			break IncomingLoop
		case e = <-r.eventQueue:
			eventQueue = append(eventQueue, e)
		case <-ticker.C:
			sort.Sort(eventQueue)
			r.Lock()
			r.vm.Pop(r.vm.GetTop())
			elapse := time.Since(eventUpdateTime)
			eventUpdateTime = time.Now()
			for len(eventQueue) > 0 {
				e, eventQueue = eventQueue[0], eventQueue[1:]
				if !e.Valid() {
					continue
				} else if err := e.Update(elapse); err != nil {
					if r.evaluate == nil {
						r.logger.Error("runtime event", zap.Error(err))
					} else {
						r.evaluate(err)
					}
					r.Unlock()
					break IncomingLoop
				} else if e.Continue() {
					eventSwapQueue = append(eventSwapQueue, e)
				}
			}
			eventQueue, eventSwapQueue = eventSwapQueue, eventQueue
			r.Unlock()
		}
	}
	r.Lock()
	r.vm.Close()
	r.Unlock()
}

// callGlobal looks up a named global and, when callable, invokes it
// protected with the given arguments. The caller must hold the
// runtime lock. Reports whether a call happened at all.
func (r *Runtime) callGlobal(name string, args ...lua.LValue) (lua.LValue, bool, error) {
	fn, ok := r.vm.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return lua.LNil, false, nil
	}
	r.vm.Push(fn)
	for _, arg := range args {
		r.vm.Push(arg)
	}
	if err := r.vm.PCall(len(args), 1, nil); err != nil {
		return lua.LNil, true, err
	}
	ret := r.vm.Get(-1)
	r.vm.Pop(1)
	return ret, true, nil
}
