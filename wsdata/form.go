// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsdata

import (
	"github.com/mitchellh/mapstructure"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Pair is a single flattened form field.
type Pair struct {
	Key   string
	Value string
}

// Form is an ordered list of form fields.  Unlike url.Values it
// preserves insertion order and allows repeated keys, so an encoded
// form is stable across runs.
//
// Nested values are flattened into bracketed key paths:
//
//   - a string, number, or boolean at key k becomes k=v;
//   - a slice or array becomes k[0], k[1], ... in index order;
//   - a map with string keys becomes k[name] in sorted key order;
//   - a struct is converted to a map with mapstructure, honoring
//     `mapstructure` field tags, and then flattened like a map;
//   - a time.Time is sent as Unix seconds;
//   - nil values and nil pointers are skipped.
//
// Booleans are sent as 1 and 0, which is what Moodle's PARAM_BOOL
// cleaning expects.
type Form struct {
	pairs []Pair
}

// Add appends a single field to the form.
func (f *Form) Add(key, value string) {
	f.pairs = append(f.pairs, Pair{Key: key, Value: value})
}

// AddBool appends a boolean field, encoded as 1 or 0.
func (f *Form) AddBool(key string, value bool) {
	f.Add(key, formatBool(value))
}

// Len returns the number of fields in the form.
func (f *Form) Len() int {
	return len(f.pairs)
}

// Pairs returns a copy of the fields in the form, in order.
func (f *Form) Pairs() []Pair {
	result := make([]Pair, len(f.pairs))
	copy(result, f.pairs)
	return result
}

// Get returns the value of the first field named key, or the empty
// string if there is none.
func (f *Form) Get(key string) string {
	for _, p := range f.pairs {
		if p.Key == key {
			return p.Value
		}
	}
	return ""
}

// Has returns true if the form contains at least one field named key.
func (f *Form) Has(key string) bool {
	for _, p := range f.pairs {
		if p.Key == key {
			return true
		}
	}
	return false
}

// Values returns the form as a url.Values.  Order is lost.
func (f *Form) Values() url.Values {
	result := make(url.Values)
	for _, p := range f.pairs {
		result.Add(p.Key, p.Value)
	}
	return result
}

// Encode produces the application/x-www-form-urlencoded encoding of
// the form, in field order.  The same encoding serves as a URL query
// string.
func (f *Form) Encode() string {
	var buf strings.Builder
	for i, p := range f.pairs {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(p.Key))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(p.Value))
	}
	return buf.String()
}

// AddArgs flattens a set of named arguments into the form.  args may
// be nil, a map with string keys, a struct, or a pointer to either.
// Top-level names for which skip returns true are left out; skip may
// be nil.  args itself is only read.
//
// If any value cannot be encoded, returns ErrBadArgument and leaves
// the form unchanged.
func (f *Form) AddArgs(args interface{}, skip func(string) bool) error {
	v := indirect(reflect.ValueOf(args))
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Struct && v.Type() != timeType {
		m, err := structToMap(v)
		if err != nil {
			return err
		}
		v = reflect.ValueOf(m)
	}
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return ErrBadArgument{Type: v.Type().String()}
	}

	var scratch Form
	for _, name := range sortedKeys(v) {
		if skip != nil && skip(name) {
			continue
		}
		err := scratch.Flatten(name, v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key())).Interface())
		if err != nil {
			return err
		}
	}
	f.pairs = append(f.pairs, scratch.pairs...)
	return nil
}

// Flatten adds value to the form under key, recursing into slices,
// maps, and structs.
func (f *Form) Flatten(key string, value interface{}) error {
	return f.flatten(key, reflect.ValueOf(value))
}

var timeType = reflect.TypeOf(time.Time{})

func (f *Form) flatten(key string, v reflect.Value) error {
	v = indirect(v)
	if !v.IsValid() {
		return nil
	}

	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		f.Add(key, strconv.FormatInt(t.Unix(), 10))
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		f.Add(key, formatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f.Add(key, strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		f.Add(key, strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32:
		f.Add(key, strconv.FormatFloat(v.Float(), 'f', -1, 32))
	case reflect.Float64:
		f.Add(key, strconv.FormatFloat(v.Float(), 'f', -1, 64))
	case reflect.String:
		f.Add(key, v.String())

	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			// []byte is file or text content, not a list of
			// small numbers
			f.Add(key, string(byteSlice(v)))
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			err := f.flatten(key+"["+strconv.Itoa(i)+"]", v.Index(i))
			if err != nil {
				return err
			}
		}

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return ErrBadArgument{Key: key, Type: v.Type().String()}
		}
		for _, name := range sortedKeys(v) {
			mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
			err := f.flatten(key+"["+name+"]", mv)
			if err != nil {
				return err
			}
		}

	case reflect.Struct:
		m, err := structToMap(v)
		if err != nil {
			return err
		}
		return f.flatten(key, reflect.ValueOf(m))

	default:
		return ErrBadArgument{Key: key, Type: v.Type().String()}
	}
	return nil
}

// indirect strips pointers and interfaces, returning the zero Value
// if it finds a nil.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func sortedKeys(v reflect.Value) []string {
	keys := make([]string, 0, v.Len())
	for _, k := range v.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)
	return keys
}

func byteSlice(v reflect.Value) []byte {
	if v.Kind() == reflect.Slice {
		return v.Bytes()
	}
	b := make([]byte, v.Len())
	for i := range b {
		b[i] = byte(v.Index(i).Uint())
	}
	return b
}

func structToMap(v reflect.Value) (map[string]interface{}, error) {
	var m map[string]interface{}
	err := mapstructure.Decode(v.Interface(), &m)
	if err != nil {
		return nil, ErrBadArgument{Type: v.Type().String()}
	}
	return m, nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
