package bridgelua

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Module is a named library preloadable into a runtime. Open
// returns the loader pushed for require; Initialize hands the
// module its logger before the runtime starts.
type Module interface {
	Name() string
	Open() lua.LGFunction
	Initialize(*zap.Logger)
}
