// Package luaconv converts between Go values and gopher-lua values.
// Conversions are deep for tables and slices; Lua functions do not
// survive a round trip and collapse to their printable form.
package luaconv

import (
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// LuaValue unwraps a Lua value into a plain Go value. Tables with
// consecutive integer keys starting at 1 become slices, any other
// table becomes a map keyed by the printable form of its keys.
func LuaValue(lv lua.LValue) interface{} {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		vf := float64(v)
		vi := int64(v)
		if vf == float64(vi) {
			// Whole numbers unwrap as integers.
			return vi
		}
		return vf
	case *lua.LTable:
		maxn := v.MaxN()
		if maxn == 0 {
			ret := make(map[string]interface{})
			v.ForEach(func(key, value lua.LValue) {
				ret[fmt.Sprint(LuaValue(key))] = LuaValue(value)
			})
			return ret
		}
		ret := make([]interface{}, 0, maxn)
		for i := 1; i <= maxn; i++ {
			ret = append(ret, LuaValue(v.RawGetInt(i)))
		}
		return ret
	case *lua.LFunction:
		return v.String()
	case *lua.LUserData:
		return v.Value
	default:
		return v
	}
}

// Table unwraps a Lua table into a string-keyed map, or nil when
// the table is array-like.
func Table(lv *lua.LTable) map[string]interface{} {
	returnData, _ := LuaValue(lv).(map[string]interface{})
	return returnData
}

func Map(l *lua.LState, data map[string]interface{}) *lua.LTable {
	lt := l.CreateTable(0, len(data))
	for k, v := range data {
		lt.RawSetString(k, Value(l, v))
	}
	return lt
}

func MapString(l *lua.LState, data map[string]string) *lua.LTable {
	lt := l.CreateTable(0, len(data))
	for k, v := range data {
		lt.RawSetString(k, Value(l, v))
	}
	return lt
}

func MapInt64(l *lua.LState, data map[string]int64) *lua.LTable {
	lt := l.CreateTable(0, len(data))
	for k, v := range data {
		lt.RawSetString(k, Value(l, v))
	}
	return lt
}

func Slice(l *lua.LState, data []interface{}) *lua.LTable {
	lt := l.CreateTable(len(data), 0)
	for i, v := range data {
		lt.RawSetInt(i+1, Value(l, v))
	}
	return lt
}

// Value wraps a Go value into a Lua value. Unsupported types wrap
// as nil rather than a typed Go nil, which gopher-lua cannot hold.
func Value(l *lua.LState, val interface{}) lua.LValue {
	if val == nil {
		return lua.LNil
	}

	switch v := val.(type) {
	case lua.LValue:
		return v
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case []byte:
		return lua.LString(v)
	case float32:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int8:
		return lua.LNumber(v)
	case int16:
		return lua.LNumber(v)
	case int32:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint:
		return lua.LNumber(v)
	case uint8:
		return lua.LNumber(v)
	case uint16:
		return lua.LNumber(v)
	case uint32:
		return lua.LNumber(v)
	case uint64:
		return lua.LNumber(v)
	case map[string][]string:
		lt := l.CreateTable(0, len(v))
		for k, vs := range v {
			lt.RawSetString(k, Value(l, vs))
		}
		return lt
	case map[string]string:
		return MapString(l, v)
	case map[string]int64:
		return MapInt64(l, v)
	case map[string]interface{}:
		return Map(l, v)
	case []string:
		lt := l.CreateTable(len(v), 0)
		for i, s := range v {
			lt.RawSetInt(i+1, lua.LString(s))
		}
		return lt
	case []interface{}:
		return Slice(l, v)
	case time.Time:
		return lua.LNumber(v.UTC().Unix())
	default:
		return lua.LNil
	}
}
