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

package bridgelua

import (
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Widget associates a UI element's lifecycle with named script
// callbacks. Each lifecycle entry point resolves its configured
// hook in the global namespace and invokes it once with the widget
// table as sole argument.
type Widget struct {
	state  *Runtime
	logger *zap.Logger

	fields map[string]Value

	onConstructed string
	onActivated   string
	onDeactivated string
	onDestructed  string

	table *lua.LTable

	mu          sync.Mutex
	activated   []func()
	deactivated []func()
}

type WidgetOption interface {
	apply(w *Widget)
}

type widgetOptionFunc func(*Widget)

func (f widgetOptionFunc) apply(w *Widget) {
	f(w)
}

// WithWidgetFields seeds the widget table with static fields on
// Construct.
func WithWidgetFields(fields map[string]Value) WidgetOption {
	return widgetOptionFunc(func(w *Widget) {
		for k, v := range fields {
			w.fields[k] = v
		}
	})
}

// WithLifecycleHooks names the global Lua functions invoked on
// construct, activate, deactivate and destruct. Empty names skip
// the corresponding hook.
func WithLifecycleHooks(constructed, activated, deactivated, destructed string) WidgetOption {
	return widgetOptionFunc(func(w *Widget) {
		w.onConstructed = constructed
		w.onActivated = activated
		w.onDeactivated = deactivated
		w.onDestructed = destructed
	})
}

// NewWidget builds a widget bridge bound to the given script
// state. A nil state is tolerated: lifecycle hooks then log and
// no-op.
func NewWidget(state *Runtime, options ...WidgetOption) *Widget {
	w := &Widget{
		state:  state,
		logger: zap.NewNop(),
		fields: make(map[string]Value),
	}
	if state != nil {
		w.logger = state.logger.With(
			zap.String("bridge", "widget"),
		)
	}
	for _, option := range options {
		option.apply(w)
	}
	return w
}

// Construct creates the widget table and invokes the constructed
// hook.
func (w *Widget) Construct() {
	w.initializeTable()
	w.callHook(w.onConstructed)
}

// Activate invokes the activated hook, then notifies native
// listeners.
func (w *Widget) Activate() {
	w.callHook(w.onActivated)
	w.notify(&w.activated)
}

// Deactivate invokes the deactivated hook, then notifies native
// listeners.
func (w *Widget) Deactivate() {
	w.callHook(w.onDeactivated)
	w.notify(&w.deactivated)
}

// Destruct invokes the destructed hook. The widget table becomes
// unreachable once the owner drops the bridge.
func (w *Widget) Destruct() {
	w.callHook(w.onDestructed)
}

// OnActivated subscribes a native listener to widget activation.
func (w *Widget) OnActivated(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.activated = append(w.activated, fn)
}

// OnDeactivated subscribes a native listener to widget
// deactivation.
func (w *Widget) OnDeactivated(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deactivated = append(w.deactivated, fn)
}

// State returns the owning script state, nil when unset.
func (w *Widget) State() *Runtime {
	return w.state
}

// Table returns the widget table as a Value, nil before Construct.
func (w *Widget) Table() Value {
	if w.table == nil {
		return Nil()
	}
	return FromLua(w.table)
}

// Call invokes a function stored in the widget table with the
// table prepended as self.
func (w *Widget) Call(name string, args ...Value) Value {
	if w.table == nil {
		w.logger.Error("widget table is not initialized")
		return Nil()
	}
	s := w.state
	s.Lock()
	defer s.Unlock()
	fn, ok := w.table.RawGetString(name).(*lua.LFunction)
	if !ok {
		w.logger.Warn("function not found in widget table",
			zap.String("function", name),
		)
		return Nil()
	}
	s.vm.Push(fn)
	s.vm.Push(w.table)
	for _, arg := range args {
		s.vm.Push(arg.Lua())
	}
	if err := s.vm.PCall(len(args)+1, 1, nil); err != nil {
		w.logger.Error("widget function",
			zap.String("function", name),
			zap.Error(err),
		)
		return Nil()
	}
	ret := s.vm.Get(-1)
	s.vm.Pop(1)
	return FromLua(ret)
}

// Field reads directly from the widget table.
func (w *Widget) Field(name string) Value {
	if w.table == nil {
		w.logger.Error("widget table is not initialized")
		return Nil()
	}
	s := w.state
	s.Lock()
	defer s.Unlock()
	return FromLua(w.table.RawGetString(name))
}

// SetField writes directly into the widget table.
func (w *Widget) SetField(name string, value Value) {
	if w.table == nil {
		w.logger.Error("widget table is not initialized")
		return
	}
	s := w.state
	s.Lock()
	defer s.Unlock()
	w.table.RawSetString(name, value.Lua())
}

func (w *Widget) initializeTable() {
	if w.state == nil {
		w.logger.Error("lua state is not set")
		return
	}
	s := w.state
	s.Lock()
	defer s.Unlock()
	table := s.vm.CreateTable(0, len(w.fields)+1)
	self := s.vm.NewUserData()
	self.Value = w
	table.RawSetString("widget", self)
	for name, value := range w.fields {
		table.RawSetString(name, value.Lua())
	}
	w.table = table
}

// callHook resolves a named global and invokes it with the widget
// table as sole argument. The result is discarded beyond the
// success flag.
func (w *Widget) callHook(name string) bool {
	if name == "" {
		return false
	}
	if w.state == nil {
		w.logger.Error("lua state is not set")
		return false
	}
	s := w.state
	s.Lock()
	defer s.Unlock()
	var table lua.LValue = lua.LNil
	if w.table != nil {
		table = w.table
	}
	_, called, err := s.callGlobal(name, table)
	if err != nil {
		w.logger.Error("lifecycle hook",
			zap.String("function", name),
			zap.Error(err),
		)
		return false
	}
	if !called {
		w.logger.Debug("hook not found or not callable",
			zap.String("function", name),
		)
	}
	return called
}

func (w *Widget) notify(listeners *[]func()) {
	w.mu.Lock()
	snapshot := make([]func(), len(*listeners))
	copy(snapshot, *listeners)
	w.mu.Unlock()
	for _, fn := range snapshot {
		fn()
	}
}
