// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsdata

import (
	"bytes"
	"fmt"
	"github.com/mitchellh/mapstructure"
	"github.com/ugorji/go/codec"
	"io"
	"io/ioutil"
	"reflect"
)

// JSONHandle returns the codec handle used for all web service JSON.
// Objects decoded into an interface{} become map[string]interface{},
// and maps are encoded with their keys in sorted order.
func JSONHandle() *codec.JsonHandle {
	json := &codec.JsonHandle{}
	json.MapType = reflect.TypeOf(map[string]interface{}(nil))
	json.Canonical = true
	return json
}

// Decode decodes a single JSON value from the entire contents of a
// reader, such as an HTTP response body.  out must be a pointer type.
func Decode(r io.Reader, out interface{}) error {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}
	return DecodeBytes(b, out)
}

// DecodeBytes decodes a single JSON value from a byte slice.  out must
// be a pointer type.  Only whitespace may follow the value; anything
// else, such as PHP notices printed after the response, returns
// ErrTrailingData.
func DecodeBytes(b []byte, out interface{}) error {
	r := bytes.NewReader(b)
	decoder := codec.NewDecoder(r, JSONHandle())
	if err := decoder.Decode(out); err != nil {
		return err
	}
	rest := make([]byte, r.Len())
	_, _ = r.Read(rest)
	if len(bytes.Trim(rest, jsonWhitespace)) != 0 {
		return ErrTrailingData
	}
	return nil
}

// jsonWhitespace is the set of characters JSON allows between tokens.
const jsonWhitespace = " \t\r\n"

// Encode writes v to w as JSON.
func Encode(w io.Writer, v interface{}) error {
	encoder := codec.NewEncoder(w, JSONHandle())
	return encoder.Encode(v)
}

// FromMap copies a decoded JSON object into one of the typed response
// structures in this package.  Numbers and strings are converted as
// needed, so a server that sends "errorcode": 42 still produces a
// usable string.  Unknown fields are ignored.
func FromMap(m map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(m)
}

// TextField returns m[key] as text.  Strings are returned as-is, a
// missing or null value is "", and anything else is rendered as JSON,
// so diagnostic fields like debuginfo survive whatever shape the
// server gave them.
func TextField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		var buf bytes.Buffer
		if err := Encode(&buf, v); err != nil {
			return fmt.Sprint(v)
		}
		return buf.String()
	}
}

// TokenErrorFrom reads the failure fields of a login (or upload)
// endpoint response that has an "error" key.  Unlike FromMap it never
// fails.
func TokenErrorFrom(m map[string]interface{}) TokenResponse {
	return TokenResponse{
		Error:      TextField(m, "error"),
		ErrorCode:  TextField(m, "errorcode"),
		Stacktrace: TextField(m, "stacktrace"),
		DebugInfo:  TextField(m, "debuginfo"),
	}
}

// ExceptionFrom checks whether a decoded response is an exception
// body.  If it is, returns the decoded exception and true.
func ExceptionFrom(v interface{}) (Exception, bool) {
	var ex Exception
	m, isMap := v.(map[string]interface{})
	if !isMap {
		return ex, false
	}
	if _, present := m["exception"]; !present {
		return ex, false
	}
	if err := FromMap(m, &ex); err != nil {
		// still an exception, even if the other fields are strange
		ex = Exception{
			Exception: TextField(m, "exception"),
			Message:   TextField(m, "message"),
			ErrorCode: TextField(m, "errorcode"),
			DebugInfo: TextField(m, "debuginfo"),
		}
	}
	return ex, true
}
