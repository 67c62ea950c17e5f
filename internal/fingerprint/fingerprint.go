// Package fingerprint produces order-independent cache keys. Values are
// written in a canonical form (map keys sorted recursively, numbers in their
// shortest representation) and hashed with xxhash.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Canonicalizer is implemented by values that know their own canonical form
type Canonicalizer interface {
	Canonical() any
}

// Key hashes the canonical form of parts into a fixed-width hex key
func Key(parts ...any) string {
	return fmt.Sprintf("%016x", Sum(parts...))
}

// Sum hashes the canonical form of parts
func Sum(parts ...any) uint64 {
	return xxhash.Sum64(Canonical(parts))
}

// Canonical returns the canonical byte form of v
func Canonical(v any) []byte {
	var buf bytes.Buffer
	write(&buf, reflect.ValueOf(v))
	return buf.Bytes()
}

func write(buf *bytes.Buffer, v reflect.Value) {
	if !v.IsValid() {
		buf.WriteString("null")
		return
	}

	if v.CanInterface() {
		switch x := v.Interface().(type) {
		case Canonicalizer:
			write(buf, reflect.ValueOf(x.Canonical()))
			return
		case time.Time:
			writeString(buf, x.UTC().Format(time.RFC3339Nano))
			return
		case time.Duration:
			buf.WriteString(strconv.FormatInt(int64(x), 10))
			return
		case *regexp.Regexp:
			if x == nil {
				buf.WriteString("null")
				return
			}
			buf.WriteString(`{"$regex":`)
			writeString(buf, x.String())
			buf.WriteByte('}')
			return
		case fmt.Stringer:
			if v.Kind() != reflect.Pointer || !v.IsNil() {
				writeString(buf, x.String())
				return
			}
		}
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			buf.WriteString("null")
			return
		}
		write(buf, v.Elem())
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		buf.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case reflect.String:
		writeString(buf, v.String())
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			buf.WriteString("null")
			return
		}
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			write(buf, v.Index(i))
		}
		buf.WriteByte(']')
	case reflect.Map:
		if v.IsNil() {
			buf.WriteString("null")
			return
		}
		keys := make([]string, 0, v.Len())
		values := make(map[string]reflect.Value, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			keys = append(keys, k)
			values[k] = iter.Value()
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			write(buf, values[k])
		}
		buf.WriteByte('}')
	case reflect.Struct:
		// Exported fields in declaration order; field order is fixed by the type.
		// Opaque structs fall back to their formatted value rather than "{}".
		t := v.Type()
		if !hasExportedField(t) {
			writeString(buf, fmt.Sprintf("%s%+v", t.String(), v))
			return
		}
		buf.WriteByte('{')
		first := true
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			writeString(buf, t.Field(i).Name)
			buf.WriteByte(':')
			write(buf, v.Field(i))
		}
		buf.WriteByte('}')
	default:
		writeString(buf, fmt.Sprintf("%v", v))
	}
}

func hasExportedField(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			return true
		}
	}
	return false
}

func writeString(buf *bytes.Buffer, s string) {
	quoted, _ := json.Marshal(s)
	buf.Write(quoted)
}
