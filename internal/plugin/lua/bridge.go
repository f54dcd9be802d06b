package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// ToLuaValue converts a Go value to its Lua representation. Maps become
// tables keyed by string, slices become array tables. Unknown types turn
// into their string form so scripts never see opaque userdata.
func ToLuaValue(L *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []byte:
		return lua.LString(v)
	case []any:
		tbl := L.NewTable()
		for i, item := range v {
			tbl.RawSetInt(i+1, ToLuaValue(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for key, item := range v {
			tbl.RawSetString(key, ToLuaValue(L, item))
		}
		return tbl
	case []map[string]any:
		tbl := L.NewTable()
		for i, item := range v {
			tbl.RawSetInt(i+1, ToLuaValue(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// ToGoValue converts a Lua value to a Go value. Tables with contiguous
// integer keys become []any, everything else becomes map[string]any.
// Circular tables are cut off at the revisit.
func ToGoValue(value lua.LValue) any {
	return toGoValue(value, map[*lua.LTable]bool{})
}

func toGoValue(value lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		return tableToGo(v, visited)
	default:
		return value.String()
	}
}

func tableToGo(tbl *lua.LTable, visited map[*lua.LTable]bool) any {
	arrLen := tbl.Len()
	if arrLen > 0 {
		arr := make([]any, 0, arrLen)
		for i := 1; i <= arrLen; i++ {
			arr = append(arr, toGoValue(tbl.RawGetInt(i), visited))
		}
		return arr
	}

	m := map[string]any{}
	tbl.ForEach(func(key, val lua.LValue) {
		m[key.String()] = toGoValue(val, visited)
	})
	return m
}
