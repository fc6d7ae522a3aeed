package bridgelua_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bridgelua/bridgelua"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/alicebob/miniredis"
)

func TestRedisModuleGetSet(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx, ctxCancelFn := context.WithTimeout(
		context.Background(), time.Second*10,
	)
	defer ctxCancelFn()
	logger, _ := zap.NewDevelopment()
	test := &TestingModule{cancel: ctxCancelFn}
	defer test.validate(t)
	newRuntimeWithModules(t, map[string]string{
		"main": `
		local test = require 'test'
		local redis = require 'redis'
		redis.set("key", 1)
		local v = redis.get("key")
		if v ~= 1 then
			test.fatal(("%q"):format(v))
		end
		test.done()
		`,
	}, bridgelua.WithContext(ctx),
		bridgelua.WithModuleRedis(logger,
			&redis.Options{
				Addr: s.Addr(),
			}),
		bridgelua.WithModule(test),
	).Wait()
}

func TestRedisModuleHash(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx, ctxCancelFn := context.WithTimeout(
		context.Background(), time.Second*10,
	)
	defer ctxCancelFn()
	logger, _ := zap.NewDevelopment()
	test := &TestingModule{cancel: ctxCancelFn}
	defer test.validate(t)
	newRuntimeWithModules(t, map[string]string{
		"main": `
		local test = require 'test'
		local redis = require 'redis'
		redis.hset("hash", "field", 1)
		if redis.hget("hash", "field") ~= 1 then
			test.fatal("hget mismatch")
		end
		if redis.hincrby("hash", "field", 2) ~= 3 then
			test.fatal("hincrby mismatch")
		end
		local all = redis.hgetall("hash")
		if all.field ~= 3 then
			test.fatal("hgetall mismatch")
		end
		test.done()
		`,
	}, bridgelua.WithContext(ctx),
		bridgelua.WithModuleRedis(logger,
			&redis.Options{
				Addr: s.Addr(),
			}),
		bridgelua.WithModule(test),
	).Wait()
}

// Pub/sub needs a real server, miniredis does not relay messages.
func TestRedisModulePubSub(t *testing.T) {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("requires a redis server, set REDIS_ADDRESS")
	}
	ctx, ctxCancelFn := context.WithTimeout(
		context.Background(), time.Second*10,
	)
	defer ctxCancelFn()
	logger, _ := zap.NewDevelopment()
	test := &TestingModule{cancel: ctxCancelFn}
	defer test.validate(t)
	newRuntimeWithModules(t, map[string]string{
		"main": `
		local test = require 'test'
		local redis = require 'redis'
		redis.subscribe("sub", function(v)
			if v ~= 1 then
				test.fatal(("%q"):format(v))
			end
			test.done()
		end)
		`,
	}, bridgelua.WithContext(ctx),
		bridgelua.WithModuleRedis(logger,
			&redis.Options{
				Addr: addr,
			}),
		bridgelua.WithModule(test),
	)
	newRuntimeWithModules(t, map[string]string{
		"main": `
		local test = require 'test'
		local redis = require 'redis'
		local event = require 'event'
		redis.publish("sub", 1)
		event.delay(5, function(_timer)
			test.fatal("timeout")
		end)
		`,
	}, bridgelua.WithContext(ctx),
		bridgelua.WithModuleEvent(logger),
		bridgelua.WithModuleRedis(logger,
			&redis.Options{
				Addr: addr,
			}),
		bridgelua.WithModule(test),
	).Wait()
}
