// Package module provides the libraries preloadable into a
// runtime, exposing a controlled subset of host functionality to
// scripts.
package module

import (
	"encoding/gob"

	"github.com/bridgelua/bridgelua/event"

	"go.uber.org/zap"
)

// Runtime is the surface modules need from their owner.
type Runtime interface {
	EventQueue() chan event.Event
}

// Module carries the name and logger shared by all modules.
type Module struct {
	name   string
	logger *zap.Logger
}

func (m *Module) Name() string {
	return m.name
}

func (m *Module) Initialize(logger *zap.Logger) {
	m.logger = logger.With(
		zap.String("module", m.name),
	)
}

// RuntimeModule is a module holding a reference to its owner for
// event queue access.
type RuntimeModule struct {
	Module
	runtime Runtime
}

func init() {
	gob.Register([]interface{}{})
	gob.Register(map[string]interface{}{})
}
