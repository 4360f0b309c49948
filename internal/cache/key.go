package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// MakeKey derives the cache key for one call. The key is the hex SHA-256 of
// the JSON encoding of {"args": args, "kwargs": kwargs} with map keys sorted.
// Values JSON cannot represent are encoded as their fmt string form.
// Equal inputs yield equal keys regardless of map insertion order.
func MakeKey(args []any, kwargs map[string]any) string {
	normArgs := make([]any, 0, len(args))
	for _, a := range args {
		normArgs = append(normArgs, normalize(reflect.ValueOf(a)))
	}
	normKwargs := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		normKwargs[k] = normalize(reflect.ValueOf(v))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Normalized values only hold JSON-safe types, so Encode cannot fail.
	_ = enc.Encode(map[string]any{"args": normArgs, "kwargs": normKwargs})

	sum := sha256.Sum256(bytes.TrimRight(buf.Bytes(), "\n"))
	return hex.EncodeToString(sum[:])
}

// normalize converts v into a tree of nil, bool, string, float64/int64/uint64,
// []any and map[string]any.
func normalize(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		if n, ok := v.Interface().(json.Number); ok {
			return n
		}
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return normalize(v.Elem())
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return string(v.Bytes())
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = normalize(v.Index(i))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = normalize(iter.Value())
		}
		return out
	default:
		return fmt.Sprint(v.Interface())
	}
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}
