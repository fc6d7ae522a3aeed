//go:build zmq
// +build zmq

package bridgelua

import (
	"github.com/bridgelua/bridgelua/module"

	"go.uber.org/zap"
)

// WithModuleZmq preloads the zmq module. Requires the libczmq
// system dependency.
func WithModuleZmq(logger *zap.Logger) Option {
	return newOption(func(r *Runtime) {
		mod := module.ZMQModule(r)
		mod.Initialize(logger)
		r.preloads[mod.Name()] = mod
	})
}
