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

package bridgelua_test

import (
	"testing"

	"github.com/bridgelua/bridgelua"
)

func TestViewModelDirectAccess(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `-- no hooks defined`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	vm := bridgelua.NewViewModel(r,
		bridgelua.WithViewModelFields(map[string]bridgelua.Value{
			"score": bridgelua.ValueOf(100),
			"name":  bridgelua.ValueOf("player"),
		}),
	)
	vm.Initialize()

	if got := vm.Property("score").Int64(); got != 100 {
		t.Fatalf("score = %v, want 100", got)
	}
	if got := vm.Property("name").String(); got != "player" {
		t.Fatalf("name = %q, want player", got)
	}
	if !vm.Property("missing").IsNil() {
		t.Fatal("missing property should be nil")
	}

	vm.SetProperty("score", bridgelua.ValueOf(250))
	if got := vm.Property("score").Int64(); got != 250 {
		t.Fatalf("score after set = %v, want 250", got)
	}
}

func TestViewModelGetHook(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `
		function on_get_property(vm, name)
			if name == "answer" then
				return 42
			end
			return nil
		end
		`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	vm := bridgelua.NewViewModel(r,
		bridgelua.WithViewModelFields(map[string]bridgelua.Value{
			"answer": bridgelua.ValueOf(1),
			"plain":  bridgelua.ValueOf(2),
		}),
		bridgelua.WithGetPropertyHook("on_get_property"),
	)
	vm.Initialize()

	// Hook override wins over the stored field.
	if got := vm.Property("answer").Int64(); got != 42 {
		t.Fatalf("answer = %v, want hook override 42", got)
	}
	// Hook returning nil falls back to the table lookup.
	if got := vm.Property("plain").Int64(); got != 2 {
		t.Fatalf("plain = %v, want 2", got)
	}
	// Field bypasses the hook entirely.
	if got := vm.Field("answer").Int64(); got != 1 {
		t.Fatalf("Field(answer) = %v, want 1", got)
	}
}

func TestViewModelSetHook(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `
		function on_set_property(vm, name, value)
			if name == "readonly" then
				return false
			elseif name == "doubled" then
				vm[name] = value * 2
				return true
			end
			return nil
		end
		`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	vm := bridgelua.NewViewModel(r,
		bridgelua.WithViewModelFields(map[string]bridgelua.Value{
			"readonly": bridgelua.ValueOf(7),
		}),
		bridgelua.WithSetPropertyHook("on_set_property"),
	)
	vm.Initialize()

	var changed []string
	vm.OnFieldValueChanged(func(field string) {
		changed = append(changed, field)
	})

	// Rejected: value untouched, no notification.
	vm.SetProperty("readonly", bridgelua.ValueOf(999))
	if got := vm.Field("readonly").Int64(); got != 7 {
		t.Fatalf("readonly = %v, want unchanged 7", got)
	}
	if len(changed) != 0 {
		t.Fatalf("rejected write must not notify, got %v", changed)
	}

	// Handled by the script: stored transformed, one notification.
	vm.SetProperty("doubled", bridgelua.ValueOf(21))
	if got := vm.Field("doubled").Int64(); got != 42 {
		t.Fatalf("doubled = %v, want 42", got)
	}
	if len(changed) != 1 || changed[0] != "doubled" {
		t.Fatalf("changed = %v, want [doubled]", changed)
	}

	// Hook declined with nil: direct store, one notification.
	vm.SetProperty("plain", bridgelua.ValueOf(5))
	if got := vm.Field("plain").Int64(); got != 5 {
		t.Fatalf("plain = %v, want 5", got)
	}
	if len(changed) != 2 || changed[1] != "plain" {
		t.Fatalf("changed = %v, want [doubled plain]", changed)
	}
}

func TestViewModelCall(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `
		function on_set_property(vm, name, value)
			if name == "install" then
				vm.greet = function(self, who)
					return "hello " .. who .. " from " .. self.name
				end
				return true
			end
			return nil
		end
		`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	vm := bridgelua.NewViewModel(r,
		bridgelua.WithViewModelFields(map[string]bridgelua.Value{
			"name": bridgelua.ValueOf("vm"),
		}),
		bridgelua.WithSetPropertyHook("on_set_property"),
	)
	vm.Initialize()
	vm.SetProperty("install", bridgelua.ValueOf(true))

	got := vm.Call("greet", bridgelua.ValueOf("world"))
	if got.String() != "hello world from vm" {
		t.Fatalf("Call(greet) = %q", got.String())
	}

	// Undefined functions return nil without raising.
	if !vm.Call("undefined").IsNil() {
		t.Fatal("undefined function should return nil")
	}
}

func TestViewModelBroadcast(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `-- no hooks defined`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	vm := bridgelua.NewViewModel(r)
	vm.Initialize()

	count := 0
	vm.OnFieldValueChanged(func(field string) {
		count++
		// Listeners may re-enter the bridge.
		_ = vm.Property(field)
	})
	vm.OnFieldValueChanged(func(string) {
		count++
	})

	vm.SetProperty("field", bridgelua.ValueOf(1))
	if count != 2 {
		t.Fatalf("listener invocations = %v, want 2", count)
	}

	vm.BroadcastFieldValueChanged("manual")
	if count != 4 {
		t.Fatalf("listener invocations = %v, want 4", count)
	}
}

func TestViewModelUninitialized(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `-- no hooks defined`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	vm := bridgelua.NewViewModel(r)
	// Every operation before Initialize logs and no-ops.
	if !vm.Property("any").IsNil() {
		t.Fatal("uninitialized Property should be nil")
	}
	vm.SetProperty("any", bridgelua.ValueOf(1))
	if !vm.Call("any").IsNil() {
		t.Fatal("uninitialized Call should be nil")
	}
	if !vm.Table().IsNil() {
		t.Fatal("uninitialized Table should be nil")
	}
}

func TestViewModelNilState(t *testing.T) {
	vm := bridgelua.NewViewModel(nil)
	vm.Initialize()
	if !vm.Property("any").IsNil() {
		t.Fatal("nil state Property should be nil")
	}
	vm.SetProperty("any", bridgelua.ValueOf(1))
	if vm.State() != nil {
		t.Fatal("State() should be nil")
	}
}
