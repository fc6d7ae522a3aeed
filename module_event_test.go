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
	"testing"
	"time"

	"github.com/bridgelua/bridgelua"
	"go.uber.org/zap"
)

func TestEventModule(t *testing.T) {
	ctx, ctxCancelFn := context.WithTimeout(
		context.Background(), time.Second*15,
	)
	defer ctxCancelFn()
	logger, _ := zap.NewDevelopment()
	test := &TestingModule{cancel: ctxCancelFn}
	defer test.validate(t)
	newRuntimeWithModules(t, map[string]string{
		"main": `
		local looptimer, delaytimer
		local test = require 'test'
		local event = require 'event'
		local count = {loop=0,delay=0}
		-- Start a loop timer
		looptimer = event.loop(1,
			function (_timer, ...)
				count.loop = count.loop + 1
				return true
			end
		)
		-- Stop loop timer after 5 sec
		delaytimer = event.delay(5,
			function (_timer, ...)
				looptimer:stop()
				count.delay = count.delay + 1
			end
		)
		-- Validate test result
		event.delay(7, function(_)
			if count.loop < 4 or count.loop > 5 then
				test.fatal("loop count out of range: "..count.loop)
			elseif count.delay ~= 1 then
				test.fatal("delay count not equal")
			elseif delaytimer:valid() then
				test.fatal("delaytimer still valid")
			elseif looptimer:valid() then
				test.fatal("looptimer still valid")
			end
			test.done()
		end)
		`,
	},
		bridgelua.WithContext(ctx),
		bridgelua.WithModule(test),
		bridgelua.WithModuleEvent(logger),
	).Wait()
}
