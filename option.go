package bridgelua

import (
	"context"
	"sync"

	"github.com/bridgelua/bridgelua/auxlib"
	"github.com/bridgelua/bridgelua/module"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type Option interface {
	apply(r *Runtime)
}

type funcOption struct {
	f func(*Runtime)
}

func (fdo *funcOption) apply(do *Runtime) {
	fdo.f(do)
}

func newOption(f func(*Runtime)) *funcOption {
	return &funcOption{
		f: f,
	}
}

func WithLogger(logger *zap.Logger) Option {
	return newOption(func(r *Runtime) {
		r.logger = logger
	})
}

func WithContext(ctx context.Context) Option {
	return newOption(func(r *Runtime) {
		r.ctx, r.ctxCancelFn = context.WithCancel(ctx)
	})
}

// WithWaitGroup ties the runtime lifetime to an external wait
// group, released when the event pump exits.
func WithWaitGroup(wg *sync.WaitGroup) Option {
	return newOption(func(r *Runtime) {
		if r.external != nil {
			r.external.Done()
		}
		r.external = wg
		wg.Add(1)
	})
}

// WithScriptEntry overrides the entry module required on Startup.
func WithScriptEntry(name string) Option {
	return newOption(func(r *Runtime) {
		r.script = name
	})
}

// WithEvaluation routes script results and errors to fn instead of
// the runtime logger.
func WithEvaluation(fn func(interface{})) Option {
	return newOption(func(r *Runtime) {
		r.evaluate = fn
	})
}

// WithGlobal seeds a global before the entry script runs. The value
// converts through luaconv.
func WithGlobal(name string, value interface{}) Option {
	return newOption(func(r *Runtime) {
		r.globals[name] = value
	})
}

func WithLibJson() Option {
	return newOption(func(r *Runtime) {
		r.auxlibs[auxlib.JsonLibName] = auxlib.OpenJson
	})
}

func WithLibBase64() Option {
	return newOption(func(r *Runtime) {
		r.auxlibs[auxlib.Base64LibName] = auxlib.OpenBase64
	})
}

func WithLibBit64() Option {
	return newOption(func(r *Runtime) {
		r.auxlibs[auxlib.Bit64LibName] = auxlib.OpenBit64
	})
}

func WithLibMD5() Option {
	return newOption(func(r *Runtime) {
		r.auxlibs[auxlib.MD5LibName] = auxlib.OpenMD5
	})
}

func WithLibAes() Option {
	return newOption(func(r *Runtime) {
		r.auxlibs[auxlib.Aes128LibName] = auxlib.OpenAes128
		r.auxlibs[auxlib.Aes256LibName] = auxlib.OpenAes256
	})
}

func WithLibUUID() Option {
	return newOption(func(r *Runtime) {
		r.auxlibs[auxlib.UUIDLibName] = auxlib.OpenUUID
	})
}

func WithModuleEvent(logger *zap.Logger) Option {
	return newOption(func(r *Runtime) {
		mod := module.EventModule(r)
		mod.Initialize(logger)
		r.preloads[mod.Name()] = mod
	})
}

func WithModuleLogger(logger *zap.Logger) Option {
	return newOption(func(r *Runtime) {
		mod := module.LoggerModule(r)
		mod.Initialize(logger)
		r.preloads[mod.Name()] = mod
	})
}

func WithModuleHttp(logger *zap.Logger) Option {
	return newOption(func(r *Runtime) {
		mod := module.HttpModule(r)
		mod.Initialize(logger)
		r.preloads[mod.Name()] = mod
	})
}

func WithModuleRedis(logger *zap.Logger, opts *redis.Options) Option {
	return newOption(func(r *Runtime) {
		mod := module.RedisModule(r, opts)
		mod.Initialize(logger)
		r.preloads[mod.Name()] = mod
	})
}

func WithModule(mod Module) Option {
	return newOption(func(r *Runtime) {
		mod.Initialize(r.logger)
		r.preloads[mod.Name()] = mod
	})
}
