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

func TestWidgetLifecycle(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `
		function on_constructed(widget)
			widget.log = {"constructed"}
		end
		function on_activated(widget)
			table.insert(widget.log, "activated")
		end
		function on_deactivated(widget)
			table.insert(widget.log, "deactivated")
		end
		function on_destructed(widget)
			table.insert(widget.log, "destructed")
		end
		`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	w := bridgelua.NewWidget(r,
		bridgelua.WithLifecycleHooks(
			"on_constructed",
			"on_activated",
			"on_deactivated",
			"on_destructed",
		),
	)

	activations := 0
	w.OnActivated(func() { activations++ })
	deactivations := 0
	w.OnDeactivated(func() { deactivations++ })

	w.Construct()
	w.Activate()
	w.Deactivate()
	w.Destruct()

	log, ok := w.Field("log").Interface().([]interface{})
	if !ok {
		t.Fatal("widget log not recorded")
	}
	want := []string{"constructed", "activated", "deactivated", "destructed"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i, entry := range want {
		if log[i] != entry {
			t.Fatalf("log[%d] = %v, want %v", i, log[i], entry)
		}
	}
	if activations != 1 {
		t.Fatalf("activations = %v, want 1", activations)
	}
	if deactivations != 1 {
		t.Fatalf("deactivations = %v, want 1", deactivations)
	}
}

func TestWidgetMissingHooks(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `-- no lifecycle hooks defined`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	// Hooks resolving to nothing log and no-op.
	w := bridgelua.NewWidget(r,
		bridgelua.WithLifecycleHooks(
			"undefined_constructed",
			"undefined_activated",
			"",
			"",
		),
		bridgelua.WithWidgetFields(map[string]bridgelua.Value{
			"title": bridgelua.ValueOf("menu"),
		}),
	)
	w.Construct()
	w.Activate()
	w.Deactivate()
	w.Destruct()

	if got := w.Field("title").String(); got != "menu" {
		t.Fatalf("title = %q, want menu", got)
	}
}

func TestWidgetCall(t *testing.T) {
	r := newRuntimeWithModules(t, map[string]string{
		"main": `
		function on_constructed(widget)
			widget.describe = function(self)
				return self.title .. " widget"
			end
		end
		`,
	})
	defer func() {
		r.Shutdown()
		r.Wait()
	}()

	w := bridgelua.NewWidget(r,
		bridgelua.WithLifecycleHooks("on_constructed", "", "", ""),
		bridgelua.WithWidgetFields(map[string]bridgelua.Value{
			"title": bridgelua.ValueOf("inventory"),
		}),
	)
	w.Construct()

	if got := w.Call("describe").String(); got != "inventory widget" {
		t.Fatalf("Call(describe) = %q", got)
	}
	if !w.Call("undefined").IsNil() {
		t.Fatal("undefined function should return nil")
	}
}

func TestWidgetNilState(t *testing.T) {
	w := bridgelua.NewWidget(nil,
		bridgelua.WithLifecycleHooks("on_constructed", "", "", ""),
	)
	w.Construct()
	w.Activate()
	if !w.Table().IsNil() {
		t.Fatal("nil state widget table should be nil")
	}
}
