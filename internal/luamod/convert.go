package luamod

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/Shopify/go-lua"
	"github.com/vk/minemods/internal/manifest"
)

// pushValue pushes a Go value. Values that are not plain data are pushed in
// their JSON form.
func pushValue(l *lua.State, v any) {
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case int:
		l.PushInteger(x)
	case int64:
		l.PushNumber(float64(x))
	case int32:
		l.PushInteger(int(x))
	case float64:
		l.PushNumber(x)
	case float32:
		l.PushNumber(float64(x))
	case []string:
		l.CreateTable(len(x), 0)
		for i, s := range x {
			l.PushString(s)
			l.RawSetInt(-2, i+1)
		}
	case []any:
		l.CreateTable(len(x), 0)
		for i, e := range x {
			pushValue(l, e)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			pushValue(l, x[k])
			l.SetField(-2, k)
		}
	default:
		generic, err := viaJSON(v)
		if err != nil {
			l.PushString(fmt.Sprint(v))
			return
		}
		pushValue(l, generic)
	}
}

// toGo converts the value at index. Tables with keys 1..n become []any,
// other tables become map[string]any keyed by their string keys. Whole
// numbers become int64.
func toGo(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return manifest.Normalize(n)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	default:
		return nil
	}
}

func tableToGo(l *lua.State, index int) any {
	index = l.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		out := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			out = append(out, toGo(l, -1))
			l.Pop(1)
		}
		return out
	}
	return tableToMap(l, index)
}

func tableToMap(l *lua.State, index int) map[string]any {
	out := map[string]any{}
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			out[key] = toGo(l, -1)
		}
		l.Pop(1)
	}
	return out
}

// plain returns v as it would look after a trip through Lua and back.
func plain(v any) any {
	switch x := v.(type) {
	case nil, bool, string:
		return x
	case int, int32, int64, float32, float64:
		return manifest.Normalize(toFloat(x))
	case []string:
		if len(x) == 0 {
			return map[string]any{}
		}
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []any:
		if len(x) == 0 {
			return map[string]any{}
		}
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			if e == nil {
				continue
			}
			out[k] = plain(e)
		}
		return out
	}
	generic, err := viaJSON(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return plain(generic)
}

func toFloat(v any) float64 {
	return reflect.ValueOf(v).Convert(reflect.TypeOf(float64(0))).Float()
}

func viaJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
