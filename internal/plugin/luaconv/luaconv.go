// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bodo Contributors

// Package luaconv maps the JSON value model (null, bool, number, string,
// array, object) to Lua values and back.
//
// Go side values use the shapes produced by encoding/json when decoding
// into any: nil, bool, float64, string, []any and map[string]any.
//
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package luaconv

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// maxDepth bounds nesting in both directions.
const maxDepth = 100

// arrayMarker is set on the metatable shared by tables built from JSON
// arrays, so an empty array converts back to [] instead of {}.
const (
	arrayMarker     = "__jsonarray"
	arrayMetaRegKey = "luaconv.array"
)

// arrayMeta returns the array metatable of L, creating it on first use.
func arrayMeta(L *lua.LState) *lua.LTable {
	if mt, ok := L.G.Registry.RawGetString(arrayMetaRegKey).(*lua.LTable); ok {
		return mt
	}
	mt := L.NewTable()
	mt.RawSetString(arrayMarker, lua.LTrue)
	L.G.Registry.RawSetString(arrayMetaRegKey, mt)
	return mt
}

func isTaggedArray(t *lua.LTable) bool {
	mt, ok := t.Metatable.(*lua.LTable)
	return ok && mt.RawGetString(arrayMarker) == lua.LTrue
}

// ToLua converts a decoded JSON value into a Lua value owned by L.
// JSON null becomes nil; object fields holding null are therefore absent
// from the resulting table.
func ToLua(L *lua.LState, v any) (lua.LValue, error) {
	return toLua(L, v, 0)
}

func toLua(L *lua.LState, v any, depth int) (lua.LValue, error) {
	if depth > maxDepth {
		return lua.LNil, oops.In("luaconv").Errorf("value nested deeper than %d levels", maxDepth)
	}

	switch val := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(val), nil
	case float64:
		return lua.LNumber(val), nil
	case float32:
		return lua.LNumber(val), nil
	case int:
		return lua.LNumber(val), nil
	case int64:
		return lua.LNumber(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return lua.LNil, oops.In("luaconv").With("number", val.String()).Wrap(err)
		}
		return lua.LNumber(f), nil
	case string:
		return lua.LString(val), nil
	case []any:
		t := L.CreateTable(len(val), 0)
		for i, item := range val {
			lv, err := toLua(L, item, depth+1)
			if err != nil {
				return lua.LNil, err
			}
			t.RawSetInt(i+1, lv)
		}
		L.SetMetatable(t, arrayMeta(L))
		return t, nil
	case map[string]any:
		t := L.CreateTable(0, len(val))
		for k, item := range val {
			lv, err := toLua(L, item, depth+1)
			if err != nil {
				return lua.LNil, err
			}
			t.RawSetString(k, lv)
		}
		return t, nil
	default:
		return lua.LNil, oops.In("luaconv").Errorf("unsupported Go type %T", v)
	}
}

// FromLua converts a Lua value into the JSON value model.
//
// Tables whose keys are exactly 1..n become arrays; every other non-empty
// table becomes an object with stringified keys. An empty table becomes an
// empty object unless it was built from a JSON array. Functions, userdata, threads, channels, cyclic tables,
// non-finite numbers and non string/number keys are rejected.
func FromLua(v lua.LValue) (any, error) {
	return fromLua(v, make(map[*lua.LTable]bool), 0)
}

func fromLua(v lua.LValue, seen map[*lua.LTable]bool, depth int) (any, error) {
	if depth > maxDepth {
		return nil, oops.In("luaconv").Errorf("table nested deeper than %d levels", maxDepth)
	}

	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, oops.In("luaconv").Errorf("number %v cannot be represented in JSON", f)
		}
		return f, nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		if seen[val] {
			return nil, oops.In("luaconv").Errorf("cyclic table")
		}
		seen[val] = true
		defer delete(seen, val)

		if n, ok := sequenceLen(val); ok {
			arr := make([]any, n)
			for i := 1; i <= n; i++ {
				item, err := fromLua(val.RawGetInt(i), seen, depth+1)
				if err != nil {
					return nil, err
				}
				arr[i-1] = item
			}
			return arr, nil
		}
		if isTaggedArray(val) && val.Len() == 0 && isEmpty(val) {
			return []any{}, nil
		}

		obj := make(map[string]any)
		var convErr error
		val.ForEach(func(k, item lua.LValue) {
			if convErr != nil {
				return
			}
			key, err := keyString(k)
			if err != nil {
				convErr = err
				return
			}
			if _, dup := obj[key]; dup {
				convErr = oops.In("luaconv").With("key", key).
					Errorf("table has both a string and a number key that map to JSON key %q", key)
				return
			}
			converted, err := fromLua(item, seen, depth+1)
			if err != nil {
				convErr = err
				return
			}
			obj[key] = converted
		})
		if convErr != nil {
			return nil, convErr
		}
		return obj, nil
	default:
		return nil, oops.In("luaconv").Errorf("cannot convert Lua %s to JSON", v.Type().String())
	}
}

func isEmpty(t *lua.LTable) bool {
	k, _ := t.Next(lua.LNil)
	return k == lua.LNil
}

// sequenceLen reports whether t is a non-empty array with keys 1..n.
func sequenceLen(t *lua.LTable) (int, bool) {
	count := 0
	maxKey := 0
	isSeq := true
	t.ForEach(func(k, _ lua.LValue) {
		if !isSeq {
			return
		}
		num, ok := k.(lua.LNumber)
		if !ok {
			isSeq = false
			return
		}
		f := float64(num)
		if f != math.Trunc(f) || f < 1 {
			isSeq = false
			return
		}
		count++
		if int(f) > maxKey {
			maxKey = int(f)
		}
	})
	if !isSeq || count == 0 || count != maxKey {
		return 0, false
	}
	return count, true
}

func keyString(k lua.LValue) (string, error) {
	switch key := k.(type) {
	case lua.LString:
		return string(key), nil
	case lua.LNumber:
		f := float64(key)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return strconv.FormatInt(int64(f), 10), nil
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	default:
		return "", oops.In("luaconv").Errorf("table key of type %s cannot be a JSON object key", k.Type().String())
	}
}

// Encode converts v with FromLua and marshals the result as JSON.
func Encode(v lua.LValue) ([]byte, error) {
	goVal, err := FromLua(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(goVal)
	if err != nil {
		return nil, oops.In("luaconv").Wrapf(err, "marshal JSON")
	}
	return data, nil
}

// Decode parses JSON data and converts it with ToLua.
func Decode(L *lua.LState, data []byte) (lua.LValue, error) {
	var goVal any
	if err := json.Unmarshal(data, &goVal); err != nil {
		return lua.LNil, oops.In("luaconv").Wrapf(err, "parse JSON")
	}
	return ToLua(L, goVal)
}

// GlobalNames returns the sorted names of string-keyed entries in t.
func GlobalNames(t *lua.LTable, keep func(name string, v lua.LValue) bool) []string {
	var names []string
	t.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		if keep == nil || keep(string(name), v) {
			names = append(names, string(name))
		}
	})
	sort.Strings(names)
	return names
}

// Describe renders a Lua value for diagnostics, e.g. "table", "string \"x\"".
func Describe(v lua.LValue) string {
	switch v.Type() {
	case lua.LTString:
		return fmt.Sprintf("string %q", v.String())
	case lua.LTNumber, lua.LTBool:
		return fmt.Sprintf("%s %s", v.Type().String(), v.String())
	default:
		return v.Type().String()
	}
}
