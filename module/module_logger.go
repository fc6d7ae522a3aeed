package module

import (
	"strconv"

	"github.com/bridgelua/bridgelua/luaconv"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// loggerModule routes script logging through the runtime's zap
// logger.
type loggerModule struct {
	Module
}

func LoggerModule(runtime Runtime) *loggerModule {
	return &loggerModule{
		Module: Module{
			name: "logger",
		},
	}
}

func (m *loggerModule) Open() lua.LGFunction {
	return func(l *lua.LState) int {
		functions := map[string]lua.LGFunction{
			"debug": m.logDebug,
			"info":  m.logInfo,
			"warn":  m.logWarn,
			"error": m.logError,
		}
		l.Push(l.SetFuncs(l.CreateTable(0, len(functions)), functions))
		return 1
	}
}

// collapseFields turns a Lua table into zap fields, stringifying
// keys the way Lua would print them.
func collapseFields(m *loggerModule, table *lua.LTable) []zap.Field {
	fields := make([]zap.Field, 0)
	table.ForEach(func(l1, l2 lua.LValue) {
		var key string
		switch k := luaconv.LuaValue(l1).(type) {
		case int64:
			key = strconv.FormatInt(k, 10)
		case []byte:
			key = string(k)
		case string:
			key = k
		default:
			m.logger.Warn("unsupported log field key", zap.Any("key", k))
			return
		}
		switch v := luaconv.LuaValue(l2).(type) {
		case int64:
			fields = append(fields, zap.Int64(key, v))
		case []byte:
			fields = append(fields, zap.String(key, string(v)))
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		case map[string]interface{}:
			fields = append(fields, zap.Any(key, v))
		case []interface{}:
			fields = append(fields, zap.Any(key, v))
		default:
			m.logger.Warn("unsupported log field value", zap.Any("value", v))
		}
	})
	return fields
}

func (m *loggerModule) log(l *lua.LState, fn func(string, ...zap.Field)) int {
	msg := l.CheckString(1)
	switch value := l.Get(2).(type) {
	case *lua.LTable:
		fn(msg, collapseFields(m, value)...)
	case lua.LString:
		fn(msg, zap.String("content", value.String()))
	default:
		fn(msg)
	}
	return 0
}

func (m *loggerModule) logDebug(l *lua.LState) int {
	return m.log(l, m.logger.Debug)
}

func (m *loggerModule) logInfo(l *lua.LState) int {
	return m.log(l, m.logger.Info)
}

func (m *loggerModule) logWarn(l *lua.LState) int {
	return m.log(l, m.logger.Warn)
}

func (m *loggerModule) logError(l *lua.LState) int {
	return m.log(l, m.logger.Error)
}
