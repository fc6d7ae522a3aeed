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
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bridgelua/bridgelua/event"

	"github.com/dietsche/rfsnotify"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gopkg.in/fsnotify.v1"
)

const luaDisableHotfixMarker = "---@disable-hotfix"

type fileCache struct {
	sync.RWMutex
	HotfixDisabled *atomic.Bool
	Name           string
	Path           string
	Content        []byte
}

// hotfix reloads the file from disk and evaluates it in the VM.
func (m *fileCache) hotfix(l *lua.LState) error {
	content, err := os.ReadFile(m.Path)
	if err != nil {
		return err
	}
	lfunc, err := l.Load(bytes.NewReader(content), m.Name)
	if err != nil {
		return err
	}
	l.Push(lfunc)
	if err := l.PCall(0, lua.MultRet, nil); err != nil {
		return err
	}
	m.Lock()
	defer m.Unlock()
	m.Content = content
	return nil
}

// patch replays already-validated content into another VM.
func (m *fileCache) patch(l *lua.LState) error {
	m.RLock()
	defer m.RUnlock()
	// Update preload function
	preload := l.GetField(l.GetField(l.Get(lua.EnvironIndex), "package"), "preload")
	f, err := l.Load(bytes.NewReader(m.Content), m.Name)
	if err != nil {
		return err
	}
	l.SetField(preload, m.Name, f)

	// Re-evaluate only when the module was already loaded.
	loaded := l.GetField(l.Get(lua.RegistryIndex), "_LOADED")
	lv := l.GetField(loaded, m.Name)
	if !lua.LVAsBool(lv) {
		return nil
	}

	l.Push(f)
	return l.PCall(0, -1, nil)
}

type ModuleNames []string

func (a ModuleNames) Len() int {
	return len(a)
}

// Init scripts sort first, shallower paths before deeper ones.
func (a ModuleNames) Less(i, j int) bool {
	init := strings.HasSuffix(a[i], "init")
	if init && strings.HasSuffix(a[j], "init") {
		return strings.Count(a[i], ".") < strings.Count(a[j], ".")
	} else if init {
		return true
	}
	return strings.Count(a[i], ".") < strings.Count(a[j], ".")
}

func (a ModuleNames) Swap(i, j int) {
	a[i], a[j] = a[j], a[i]
}

// ScriptModule serves .lua files under lua.LuaLDir to every
// attached runtime and hot-reloads them on change.
type ScriptModule struct {
	sync.RWMutex

	once sync.Once

	runtimes chan *Runtime

	logger  *zap.Logger
	names   ModuleNames
	modules map[string]*fileCache
}

func NewScriptModule(logger *zap.Logger) *ScriptModule {
	return &ScriptModule{
		logger: logger,

		names:    make(ModuleNames, 0),
		runtimes: make(chan *Runtime, 1024),
		modules:  make(map[string]*fileCache),
	}
}

func (sm *ScriptModule) attach(r *Runtime) {
	sm.runtimes <- r
}

func (sm *ScriptModule) add(m *fileCache) {
	sm.Lock()
	defer sm.Unlock()

	if old, ok := sm.modules[m.Name]; !ok {
		sm.names = append(sm.names, m.Name)
		// Process init scripts with ascending depth order before all other scripts.
		sort.Sort(sm.names)
	} else {
		// Preserve hotfix disabled state.
		m.HotfixDisabled.Swap(old.HotfixDisabled.Load())
	}

	sm.modules[m.Name] = m
}

func (sm *ScriptModule) List() []string {
	sm.RLock()
	defer sm.RUnlock()
	clone := make([]string, len(sm.names))
	copy(clone, sm.names)
	return clone
}

func (sm *ScriptModule) get(name string) (*fileCache, bool) {
	sm.RLock()
	defer sm.RUnlock()
	if m, ok := sm.modules[name]; ok {
		return m, ok
	}
	return nil, false
}

func scan(path string) []string {
	paths := make([]string, 0, 5)
	fn := func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !f.IsDir() {
			paths = append(paths, path)
		}
		return nil
	}
	if err := filepath.Walk(path, fn); err != nil {
		return []string{}
	}
	return paths
}

func moduleName(path string) string {
	relPath, _ := filepath.Rel(lua.LuaLDir, path)
	name := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	// Make paths Lua friendly.
	return strings.ReplaceAll(name, string(os.PathSeparator), ".")
}

const emptyLString lua.LString = lua.LString("")

func loGetPath(env string, defpath string) string {
	path := os.Getenv(env)
	if len(path) == 0 {
		path = defpath
	}
	path = strings.Replace(path, ";;", ";"+defpath+";", -1)
	if os.PathSeparator != '/' {
		dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
		if err != nil {
			panic(err)
		}
		path = strings.Replace(path, "!", dir, -1)
	}
	return path
}

var loFuncs = map[string]lua.LGFunction{
	"loadlib": loLoadLib,
	"seeall":  loSeeAll,
}

func loLoaderPreload(L *lua.LState) int {
	name := L.CheckString(1)
	preload := L.GetField(L.GetField(L.Get(lua.EnvironIndex), "package"), "preload")
	if _, ok := preload.(*lua.LTable); !ok {
		L.RaiseError("package.preload must be a table")
	}
	lv := L.GetField(preload, name)
	if lv == lua.LNil {
		L.Push(lua.LString(fmt.Sprintf("no field package.preload['%s']", name)))
		return 1
	}
	L.Push(lv)
	return 1
}

func loLoadLib(L *lua.LState) int {
	L.RaiseError("loadlib is not supported")
	return 0
}

func loSeeAll(L *lua.LState) int {
	mod := L.CheckTable(1)
	mt := L.GetMetatable(mod)
	if mt == lua.LNil {
		mt = L.CreateTable(0, 1)
		L.SetMetatable(mod, mt)
	}
	L.SetField(mt, "__index", L.Get(lua.GlobalsIndex))
	return 0
}

// OpenPackage returns the package library loader. The first call
// scans the script directory and starts the hot-reload watcher.
func (sm *ScriptModule) OpenPackage() lua.LGFunction {
	sm.once.Do(sm.setup)
	return func(L *lua.LState) int {
		loLoaderCache := func(L *lua.LState) int {
			name := L.CheckString(1)
			module, ok := sm.get(name)
			if !ok {
				L.Push(lua.LString(fmt.Sprintf("no cached module '%s'", name)))
				return 1
			}
			fn, err := L.Load(bytes.NewReader(module.Content), module.Path)
			if err != nil {
				L.RaiseError(err.Error())
			}
			L.Push(fn)
			return 1
		}

		packagemod := L.RegisterModule(lua.LoadLibName, loFuncs)

		L.SetField(packagemod, "preload", L.NewTable())

		loaders := L.CreateTable(2, 0)
		L.RawSetInt(loaders, 1, L.NewFunction(loLoaderPreload))
		L.RawSetInt(loaders, 2, L.NewFunction(loLoaderCache))
		L.SetField(packagemod, "loaders", loaders)
		L.SetField(L.Get(lua.RegistryIndex), "_LOADERS", loaders)

		loaded := L.NewTable()
		L.SetField(packagemod, "loaded", loaded)
		L.SetField(L.Get(lua.RegistryIndex), "_LOADED", loaded)

		L.SetField(packagemod, "path", lua.LString(loGetPath(lua.LuaPath, lua.LuaPathDefault)))
		L.SetField(packagemod, "cpath", emptyLString)

		L.Push(packagemod)
		return 1
	}
}

func (sm *ScriptModule) setup() {
	for _, path := range scan(lua.LuaLDir) {
		if strings.ToLower(filepath.Ext(path)) != ".lua" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			sm.logger.Warn("An error occurred while reading lua module", zap.Error(err))
			break
		}
		static := strings.HasPrefix(string(content), luaDisableHotfixMarker)
		sm.add(&fileCache{
			HotfixDisabled: atomic.NewBool(static),
			Name:           moduleName(path),
			Path:           path,
			Content:        content,
		})
	}
	watcher, err := rfsnotify.NewWatcher()
	if err != nil {
		sm.logger.Fatal("Failed to create runtime directory watcher", zap.Error(err))
	}
	go sm.watch(context.Background(), watcher)
	if err = watcher.AddRecursive(lua.LuaLDir); err != nil {
		sm.logger.Fatal("An error occurred while watching directory", zap.Error(err))
	}
	absDir, _ := filepath.Abs(lua.LuaLDir)
	sm.logger.Info("Watching runtime directory", zap.String("path", absDir))
}

func (sm *ScriptModule) watch(ctx context.Context, watcher *rfsnotify.RWatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if strings.ToLower(filepath.Ext(ev.Name)) != ".lua" {
				break
			}
			name := moduleName(ev.Name)
			switch ev.Op {
			case fsnotify.Write:
				// Skip static files.
				if m, ok := sm.get(name); ok && m.HotfixDisabled.Load() {
					break
				}
				fallthrough
			case fsnotify.Create:
				content, err := os.ReadFile(ev.Name)
				if err != nil {
					sm.logger.Warn("An error occurred while reading lua module", zap.Error(err))
					break
				}
				static := strings.HasPrefix(string(content), luaDisableHotfixMarker)
				sm.hotpatch(ctx, &fileCache{
					HotfixDisabled: atomic.NewBool(static),
					Name:           name,
					Path:           ev.Name,
					Content:        content,
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			sm.logger.Error("An error occurred while watching directory", zap.Error(err))
		}
	}
}

// hotpatch pushes the changed module into every attached runtime.
// The first runtime evaluates the file from disk; the rest replay
// the validated content. A failure on the first attempt discards
// the change entirely.
func (sm *ScriptModule) hotpatch(ctx context.Context, m *fileCache) {
	completes := 0
	for count := len(sm.runtimes); completes < count; completes++ {
		var r *Runtime
		select {
		case <-ctx.Done():
			return
		case r = <-sm.runtimes:
		}
		sm.runtimes <- r
		result := make(chan error, 1)
		var e event.Event
		if completes == 0 {
			e = &hotfixEvent{vm: r.vm, module: m, logger: sm.logger, resultCh: result}
		} else {
			e = &patchEvent{vm: r.vm, module: m, logger: sm.logger, resultCh: result}
		}
		select {
		case <-ctx.Done():
			return
		case r.eventQueue <- e:
		}
		if err := <-result; err != nil {
			sm.logger.Warn("An error occurred while patching lua module",
				zap.String("module", m.Name), zap.Error(err))
			return
		}
	}
	sm.add(m)
	sm.logger.Info("Lua runtime patched",
		zap.String("module", m.Name),
		zap.Int("runtimes", completes))
}

type hotfixEvent struct {
	event.StateEvent
	vm       *lua.LState
	logger   *zap.Logger
	module   *fileCache
	resultCh chan error
}

func (e *hotfixEvent) Update(elapse time.Duration) error {
	switch event.State(e.Load()) {
	case event.INITIALIZE:
		var err error
		defer e.Store(uint32(event.COMPLETE))
		if err = e.module.hotfix(e.vm); err != nil {
			e.logger.Warn("cannot perform hotfix",
				zap.String("module", e.module.Name),
				zap.String("path", e.module.Path),
			)
		} else {
			e.logger.Info("success",
				zap.String("module", e.module.Name),
			)
		}
		e.resultCh <- err
	}
	return nil
}

type patchEvent struct {
	event.StateEvent
	vm       *lua.LState
	logger   *zap.Logger
	module   *fileCache
	resultCh chan error
}

func (e *patchEvent) Update(elapse time.Duration) error {
	switch event.State(e.Load()) {
	case event.INITIALIZE:
		var err error
		defer e.Store(uint32(event.COMPLETE))
		if err = e.module.patch(e.vm); err != nil {
			e.logger.Warn("cannot perform hotfix",
				zap.String("module", e.module.Name),
				zap.String("path", e.module.Path),
			)
		} else {
			e.logger.Info("success",
				zap.String("module", e.module.Name),
			)
		}
		e.resultCh <- err
	}
	return nil
}
