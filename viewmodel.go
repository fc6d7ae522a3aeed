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

// FieldChangedFunc receives change notifications for binding
// frameworks observing a viewmodel.
type FieldChangedFunc func(field string)

// ViewModel associates a native data object with a script-backed
// table. Property access can be intercepted by optional global Lua
// hooks, and every effective write broadcasts a field-changed
// notification to subscribed listeners.
//
// All operations are synchronous calls into the owning runtime's
// interpreter, serialized by the runtime lock.
type ViewModel struct {
	state  *Runtime
	logger *zap.Logger

	fields map[string]Value
	onGet  string
	onSet  string

	table *lua.LTable

	mu        sync.Mutex
	listeners []FieldChangedFunc
}

type ViewModelOption interface {
	apply(vm *ViewModel)
}

type viewModelOptionFunc func(*ViewModel)

func (f viewModelOptionFunc) apply(vm *ViewModel) {
	f(vm)
}

// WithViewModelFields seeds the bridge table with static fields on
// Initialize.
func WithViewModelFields(fields map[string]Value) ViewModelOption {
	return viewModelOptionFunc(func(vm *ViewModel) {
		for k, v := range fields {
			vm.fields[k] = v
		}
	})
}

// WithGetPropertyHook names a global Lua function called as
// fn(table, name) before every property read. A non-nil result
// overrides the table lookup.
func WithGetPropertyHook(name string) ViewModelOption {
	return viewModelOptionFunc(func(vm *ViewModel) {
		vm.onGet = name
	})
}

// WithSetPropertyHook names a global Lua function called as
// fn(table, name, value) before every property write. Returning
// true marks the write handled by the script, false rejects it,
// anything else stores the value directly.
func WithSetPropertyHook(name string) ViewModelOption {
	return viewModelOptionFunc(func(vm *ViewModel) {
		vm.onSet = name
	})
}

// NewViewModel builds a viewmodel bound to the given script state.
// A nil state is tolerated: every operation then logs and no-ops.
func NewViewModel(state *Runtime, options ...ViewModelOption) *ViewModel {
	vm := &ViewModel{
		state:  state,
		logger: zap.NewNop(),
		fields: make(map[string]Value),
	}
	if state != nil {
		vm.logger = state.logger.With(
			zap.String("bridge", "viewmodel"),
		)
	}
	for _, option := range options {
		option.apply(vm)
	}
	return vm
}

// Initialize creates the bridge table, stores the back-reference
// under "viewmodel" and copies the configured fields.
func (vm *ViewModel) Initialize() {
	if vm.state == nil {
		vm.logger.Error("lua state is not set")
		return
	}
	s := vm.state
	s.Lock()
	defer s.Unlock()
	table := s.vm.CreateTable(0, len(vm.fields)+1)
	self := s.vm.NewUserData()
	self.Value = vm
	table.RawSetString("viewmodel", self)
	for name, value := range vm.fields {
		table.RawSetString(name, value.Lua())
	}
	vm.table = table
}

// State returns the owning script state, nil when unset.
func (vm *ViewModel) State() *Runtime {
	return vm.state
}

// Table returns the bridge table as a Value, nil before Initialize.
func (vm *ViewModel) Table() Value {
	if vm.table == nil {
		return Nil()
	}
	return FromLua(vm.table)
}

// Property reads a property, letting the on-get hook override the
// table lookup with any non-nil result.
func (vm *ViewModel) Property(name string) Value {
	if vm.table == nil {
		vm.logger.Error("viewmodel table is not initialized")
		return Nil()
	}
	s := vm.state
	s.Lock()
	defer s.Unlock()
	if vm.onGet != "" {
		ret, called, err := s.callGlobal(vm.onGet, vm.table, lua.LString(name))
		if err != nil {
			vm.logger.Error("on-get hook",
				zap.String("function", vm.onGet),
				zap.String("property", name),
				zap.Error(err),
			)
		} else if !called {
			vm.logger.Warn("hook not found or not callable",
				zap.String("function", vm.onGet),
			)
		} else if ret != lua.LNil {
			return FromLua(ret)
		}
	}
	return FromLua(vm.table.RawGetString(name))
}

// SetProperty writes a property through the optional on-set hook.
// A hook returning true has stored the value itself, false rejects
// the write, any other outcome stores the value directly. Every
// non-rejected write broadcasts exactly one change notification.
func (vm *ViewModel) SetProperty(name string, value Value) {
	if vm.table == nil {
		vm.logger.Error("viewmodel table is not initialized")
		return
	}
	s := vm.state
	s.Lock()
	stored := false
	if vm.onSet != "" {
		ret, called, err := s.callGlobal(vm.onSet, vm.table, lua.LString(name), value.Lua())
		switch {
		case err != nil:
			vm.logger.Error("on-set hook",
				zap.String("function", vm.onSet),
				zap.String("property", name),
				zap.Error(err),
			)
			vm.table.RawSetString(name, value.Lua())
			stored = true
		case called:
			if handled, ok := ret.(lua.LBool); ok {
				// true: script stored it, false: rejected.
				stored = bool(handled)
			} else {
				vm.table.RawSetString(name, value.Lua())
				stored = true
			}
		default:
			vm.logger.Warn("hook not found or not callable",
				zap.String("function", vm.onSet),
			)
			vm.table.RawSetString(name, value.Lua())
			stored = true
		}
	} else {
		vm.table.RawSetString(name, value.Lua())
		stored = true
	}
	s.Unlock()
	if stored {
		vm.BroadcastFieldValueChanged(name)
	}
}

// Call invokes a function stored in the bridge table with the
// table prepended as self. Returns nil when the name does not
// resolve to a function.
func (vm *ViewModel) Call(name string, args ...Value) Value {
	if vm.table == nil {
		vm.logger.Error("viewmodel table is not initialized")
		return Nil()
	}
	s := vm.state
	s.Lock()
	defer s.Unlock()
	fn, ok := vm.table.RawGetString(name).(*lua.LFunction)
	if !ok {
		vm.logger.Warn("function not found in viewmodel table",
			zap.String("function", name),
		)
		return Nil()
	}
	s.vm.Push(fn)
	s.vm.Push(vm.table)
	for _, arg := range args {
		s.vm.Push(arg.Lua())
	}
	if err := s.vm.PCall(len(args)+1, 1, nil); err != nil {
		vm.logger.Error("viewmodel function",
			zap.String("function", name),
			zap.Error(err),
		)
		return Nil()
	}
	ret := s.vm.Get(-1)
	s.vm.Pop(1)
	return FromLua(ret)
}

// Field reads directly from the bridge table, bypassing hooks.
func (vm *ViewModel) Field(name string) Value {
	if vm.table == nil {
		vm.logger.Error("viewmodel table is not initialized")
		return Nil()
	}
	s := vm.state
	s.Lock()
	defer s.Unlock()
	return FromLua(vm.table.RawGetString(name))
}

// SetField writes directly into the bridge table, bypassing hooks
// and notifications.
func (vm *ViewModel) SetField(name string, value Value) {
	if vm.table == nil {
		vm.logger.Error("viewmodel table is not initialized")
		return
	}
	s := vm.state
	s.Lock()
	defer s.Unlock()
	vm.table.RawSetString(name, value.Lua())
}

// OnFieldValueChanged subscribes a listener to change
// notifications.
func (vm *ViewModel) OnFieldValueChanged(fn FieldChangedFunc) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.listeners = append(vm.listeners, fn)
}

// BroadcastFieldValueChanged notifies every listener that a field
// changed. Listeners run on the caller's goroutine without the
// runtime lock held, so they may call back into the bridge.
func (vm *ViewModel) BroadcastFieldValueChanged(name string) {
	vm.mu.Lock()
	listeners := make([]FieldChangedFunc, len(vm.listeners))
	copy(listeners, vm.listeners)
	vm.mu.Unlock()
	for _, fn := range listeners {
		fn(name)
	}
}
