package bridgelua_test

import (
	"testing"

	"github.com/bridgelua/bridgelua"

	lua "github.com/yuin/gopher-lua"
)

func TestValueOfScalars(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		typ   bridgelua.ValueType
	}{
		{"nil", nil, bridgelua.TypeNil},
		{"bool", true, bridgelua.TypeBool},
		{"int", 42, bridgelua.TypeInt},
		{"int64", int64(42), bridgelua.TypeInt},
		{"float", 1.5, bridgelua.TypeNumber},
		{"string", "hello", bridgelua.TypeString},
		{"bytes", []byte("hello"), bridgelua.TypeString},
		{"unsupported", struct{}{}, bridgelua.TypeNil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := bridgelua.ValueOf(tc.value).Type; got != tc.typ {
				t.Fatalf("ValueOf(%v).Type = %v, want %v", tc.value, got, tc.typ)
			}
		})
	}
}

func TestValueTruthiness(t *testing.T) {
	if bridgelua.Nil().Bool() {
		t.Fatal("nil should be false")
	}
	if bridgelua.ValueOf(false).Bool() {
		t.Fatal("false should be false")
	}
	if !bridgelua.ValueOf(0).Bool() {
		t.Fatal("zero should be true")
	}
	if !bridgelua.ValueOf("").Bool() {
		t.Fatal("empty string should be true")
	}
}

func TestValueNumericCoercion(t *testing.T) {
	i := bridgelua.ValueOf(42)
	if i.Float64() != 42.0 {
		t.Fatalf("Float64() = %v, want 42", i.Float64())
	}
	n := bridgelua.ValueOf(1.5)
	if n.Int64() != 1 {
		t.Fatalf("Int64() = %v, want 1", n.Int64())
	}
	if bridgelua.ValueOf("nan").Int64() != 0 {
		t.Fatal("non-numeric Int64 should be 0")
	}
}

func TestValueFromLuaIntegral(t *testing.T) {
	// Whole interpreter numbers surface as the int variant.
	v := bridgelua.FromLua(lua.LNumber(3))
	if !v.IsInt() || v.Int64() != 3 {
		t.Fatalf("FromLua(3) = %v, want int 3", v)
	}
	v = bridgelua.FromLua(lua.LNumber(3.5))
	if !v.IsNumber() || v.Float64() != 3.5 {
		t.Fatalf("FromLua(3.5) = %v, want number 3.5", v)
	}
}

func TestValueRoundTrip(t *testing.T) {
	for _, val := range []interface{}{true, 42, 1.5, "hello"} {
		v := bridgelua.ValueOf(val)
		if got := bridgelua.FromLua(v.Lua()); got != v {
			t.Fatalf("round trip of %v: got %v, want %v", val, got, v)
		}
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		value bridgelua.Value
		want  string
	}{
		{bridgelua.Nil(), "nil"},
		{bridgelua.ValueOf(true), "true"},
		{bridgelua.ValueOf(42), "42"},
		{bridgelua.ValueOf("hello"), "hello"},
	}
	for _, tc := range tests {
		if got := tc.value.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestValueOfPassthrough(t *testing.T) {
	v := bridgelua.ValueOf("hello")
	if got := bridgelua.ValueOf(v); got != v {
		t.Fatal("ValueOf(Value) should pass through")
	}
	if got := bridgelua.ValueOf(lua.LString("hello")); got != v {
		t.Fatal("ValueOf(lua.LValue) should wrap through FromLua")
	}
}
