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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bridgelua/bridgelua"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

func TestRuntimeAuxlib(t *testing.T) {
	ctx, ctxCancelFn := context.WithTimeout(
		context.Background(), time.Second*10,
	)
	defer ctxCancelFn()
	test := &TestingModule{cancel: ctxCancelFn}
	defer test.validate(t)
	newRuntimeWithModules(t, map[string]string{
		"main": `
		local test = require 'test'
		local json = require 'json'
		local base64 = require 'base64'
		local md5 = require 'md5'
		local uuid = require 'uuid'
		local bit64 = require 'bit64'
		local value = json.decode(json.encode({key=1}))
		if value.key ~= 1 then
			test.fatal("json round trip")
		end
		if base64.decode(base64.encode("payload")) ~= "payload" then
			test.fatal("base64 round trip")
		end
		if #md5.sum("payload") ~= 32 then
			test.fatal("md5 digest length")
		end
		if uuid.gen() == uuid.gen() then
			test.fatal("uuid uniqueness")
		end
		if bit64.bor(1, 2) ~= 3 then
			test.fatal("bit64 bor")
		end
		test.done()
		`,
	}, bridgelua.WithContext(ctx),
		bridgelua.WithLibJson(),
		bridgelua.WithLibBase64(),
		bridgelua.WithLibMD5(),
		bridgelua.WithLibUUID(),
		bridgelua.WithLibBit64(),
		bridgelua.WithModule(test),
	).Wait()
}

func TestRuntimeGlobal(t *testing.T) {
	ctx, ctxCancelFn := context.WithTimeout(
		context.Background(), time.Second*10,
	)
	defer ctxCancelFn()
	test := &TestingModule{cancel: ctxCancelFn}
	defer test.validate(t)
	newRuntimeWithModules(t, map[string]string{
		"main": `
		local test = require 'test'
		if answer ~= 42 then
			test.fatal("global not seeded")
		end
		if config.debug ~= true then
			test.fatal("global table not seeded")
		end
		test.done()
		`,
	}, bridgelua.WithContext(ctx),
		bridgelua.WithGlobal("answer", 42),
		bridgelua.WithGlobal("config", map[string]interface{}{
			"debug": true,
		}),
		bridgelua.WithModule(test),
	).Wait()
}

func TestRuntimeEvaluation(t *testing.T) {
	results := make(chan interface{}, 1)
	r := newRuntimeWithModules(t, map[string]string{
		"main": `return 42`,
	}, bridgelua.WithEvaluation(func(v interface{}) {
		results <- v
	}))
	defer func() {
		r.Shutdown()
		r.Wait()
	}()
	select {
	case v := <-results:
		if v != int64(42) {
			t.Fatalf("evaluation = %v, want 42", v)
		}
	case <-time.After(time.Second * 5):
		t.Fatal("evaluation not delivered")
	}
}

func TestRuntimeScriptEntry(t *testing.T) {
	ctx, ctxCancelFn := context.WithTimeout(
		context.Background(), time.Second*10,
	)
	defer ctxCancelFn()
	test := &TestingModule{cancel: ctxCancelFn}
	defer test.validate(t)
	newRuntimeWithModules(t, map[string]string{
		"main":  `require('test').fatal("wrong entry")`,
		"other": `require('test').done()`,
	}, bridgelua.WithContext(ctx),
		bridgelua.WithScriptEntry("other"),
		bridgelua.WithModule(test),
	).Wait()
}

func TestRuntimeWithConfig(t *testing.T) {
	dir, err := os.MkdirTemp("",
		fmt.Sprintf("bridgelua_test_%v", uuid.New().String()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	script := `require('test').done()`
	if err := os.WriteFile(filepath.Join(dir, "game.lua"), []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	lua.LuaLDir = dir

	config := bridgelua.NewFileConfig()
	config.Runtime.Entry = "game"
	if err := config.Validate(); err != nil {
		t.Fatal(err)
	}

	ctx, ctxCancelFn := context.WithTimeout(
		context.Background(), time.Second*10,
	)
	defer ctxCancelFn()
	logger, _ := zap.NewDevelopment()
	test := &TestingModule{cancel: ctxCancelFn}
	defer test.validate(t)
	r := bridgelua.NewRuntimeWithConfig(
		bridgelua.NewScriptModule(logger),
		config,
		bridgelua.WithContext(ctx),
		bridgelua.WithModule(test),
	)
	r.Startup()
	r.Wait()
}
