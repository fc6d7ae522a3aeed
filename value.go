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
	"fmt"

	"github.com/bridgelua/bridgelua/luaconv"
	lua "github.com/yuin/gopher-lua"
)

// ValueType discriminates the variants of Value.
type ValueType uint8

const (
	TypeNil ValueType = iota
	TypeBool
	TypeInt
	TypeNumber
	TypeString
	TypeFunction
	TypeTable
	TypeObject
)

func (t ValueType) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeFunction:
		return "function"
	case TypeTable:
		return "table"
	case TypeObject:
		return "object"
	}
	return "unknown"
}

// Value is the tagged union crossing the script boundary. Scalar
// variants are copied; function, table and object variants hold
// references into the interpreter heap and stay alive only as long
// as the owning runtime does.
type Value struct {
	Type ValueType

	b   bool
	i   int64
	n   float64
	s   string
	fn  *lua.LFunction
	tbl *lua.LTable
	obj *lua.LUserData
}

// Nil returns the nil Value.
func Nil() Value {
	return Value{Type: TypeNil}
}

// ValueOf wraps a Go scalar into a Value. Unsupported types wrap
// as nil; tables and functions can only originate from a runtime
// through FromLua.
func ValueOf(val interface{}) Value {
	switch v := val.(type) {
	case nil:
		return Nil()
	case Value:
		return v
	case lua.LValue:
		return FromLua(v)
	case bool:
		return Value{Type: TypeBool, b: v}
	case int:
		return Value{Type: TypeInt, i: int64(v)}
	case int32:
		return Value{Type: TypeInt, i: int64(v)}
	case int64:
		return Value{Type: TypeInt, i: v}
	case float32:
		return Value{Type: TypeNumber, n: float64(v)}
	case float64:
		return Value{Type: TypeNumber, n: v}
	case string:
		return Value{Type: TypeString, s: v}
	case []byte:
		return Value{Type: TypeString, s: string(v)}
	}
	return Nil()
}

// FromLua wraps an interpreter value into a Value. Whole numbers
// wrap as the int variant, consistent with luaconv.
func FromLua(lv lua.LValue) Value {
	switch v := lv.(type) {
	case *lua.LNilType:
		return Nil()
	case lua.LBool:
		return Value{Type: TypeBool, b: bool(v)}
	case lua.LNumber:
		vf := float64(v)
		vi := int64(v)
		if vf == float64(vi) {
			return Value{Type: TypeInt, i: vi}
		}
		return Value{Type: TypeNumber, n: vf}
	case lua.LString:
		return Value{Type: TypeString, s: string(v)}
	case *lua.LFunction:
		return Value{Type: TypeFunction, fn: v}
	case *lua.LTable:
		return Value{Type: TypeTable, tbl: v}
	case *lua.LUserData:
		return Value{Type: TypeObject, obj: v}
	}
	return Nil()
}

// Lua unwraps the Value back into an interpreter value.
func (v Value) Lua() lua.LValue {
	switch v.Type {
	case TypeBool:
		return lua.LBool(v.b)
	case TypeInt:
		return lua.LNumber(v.i)
	case TypeNumber:
		return lua.LNumber(v.n)
	case TypeString:
		return lua.LString(v.s)
	case TypeFunction:
		return v.fn
	case TypeTable:
		return v.tbl
	case TypeObject:
		return v.obj
	}
	return lua.LNil
}

func (v Value) IsNil() bool {
	return v.Type == TypeNil
}

func (v Value) IsBool() bool {
	return v.Type == TypeBool
}

func (v Value) IsInt() bool {
	return v.Type == TypeInt
}

func (v Value) IsNumber() bool {
	return v.Type == TypeNumber
}

func (v Value) IsString() bool {
	return v.Type == TypeString
}

func (v Value) IsFunction() bool {
	return v.Type == TypeFunction
}

func (v Value) IsTable() bool {
	return v.Type == TypeTable
}

func (v Value) IsObject() bool {
	return v.Type == TypeObject
}

// Bool reports the Lua truthiness of the value: everything except
// nil and false is true.
func (v Value) Bool() bool {
	switch v.Type {
	case TypeNil:
		return false
	case TypeBool:
		return v.b
	}
	return true
}

func (v Value) Int64() int64 {
	switch v.Type {
	case TypeInt:
		return v.i
	case TypeNumber:
		return int64(v.n)
	}
	return 0
}

func (v Value) Float64() float64 {
	switch v.Type {
	case TypeInt:
		return float64(v.i)
	case TypeNumber:
		return v.n
	}
	return 0
}

func (v Value) Function() *lua.LFunction {
	return v.fn
}

func (v Value) Table() *lua.LTable {
	return v.tbl
}

// Object returns the wrapped native object, or nil for any other
// variant.
func (v Value) Object() interface{} {
	if v.obj == nil {
		return nil
	}
	return v.obj.Value
}

// Interface unwraps the value into a plain Go value, deep for
// tables.
func (v Value) Interface() interface{} {
	return luaconv.LuaValue(v.Lua())
}

func (v Value) String() string {
	switch v.Type {
	case TypeNil:
		return "nil"
	case TypeBool:
		return fmt.Sprint(v.b)
	case TypeInt:
		return fmt.Sprint(v.i)
	case TypeNumber:
		return fmt.Sprint(v.n)
	case TypeString:
		return v.s
	}
	return v.Lua().String()
}
