// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsdata

import (
	"bytes"
	"github.com/stretchr/testify/assert"
	"strings"
	"testing"
)

func TestDecodeNull(t *testing.T) {
	var v interface{} = "not nil"
	err := Decode(strings.NewReader("null"), &v)
	if assert.NoError(t, err) {
		assert.Nil(t, v)
	}
}

func TestDecodeObject(t *testing.T) {
	var v interface{}
	err := DecodeBytes([]byte(`{"executed":"get_status","nested":{"k":"v"}}`), &v)
	if assert.NoError(t, err) {
		assert.Equal(t, map[string]interface{}{
			"executed": "get_status",
			"nested":   map[string]interface{}{"k": "v"},
		}, v)
	}
}

func TestDecodeGarbage(t *testing.T) {
	var v interface{}
	err := Decode(strings.NewReader("<html>Fatal error</html>"), &v)
	assert.Error(t, err)

	err = Decode(strings.NewReader(""), &v)
	assert.Error(t, err)
}

func TestDecodeTrailingData(t *testing.T) {
	for _, body := range []string{
		`{"a":1} <b>Notice</b>`,
		"5abc",
		"null<br/>",
		"[1,2] ]",
		`"s""t"`,
	} {
		var v interface{}
		err := DecodeBytes([]byte(body), &v)
		assert.Equal(t, ErrTrailingData, err, "%q", body)
	}

	var v interface{}
	err := Decode(strings.NewReader("{\"a\":\"b\"}\r\n\t "), &v)
	if assert.NoError(t, err) {
		assert.Equal(t, map[string]interface{}{"a": "b"}, v)
	}
	err = DecodeBytes([]byte(" true\n"), &v)
	if assert.NoError(t, err) {
		assert.Equal(t, true, v)
	}
}

func TestDecodeTyped(t *testing.T) {
	var files []UploadedFile
	err := DecodeBytes([]byte(`[{"component":"user","contextid":5,"filearea":"draft","itemid":123,"filename":"a.txt","filepath":"/"}]`), &files)
	if assert.NoError(t, err) && assert.Len(t, files, 1) {
		assert.Equal(t, UploadedFile{
			Component: "user",
			ContextID: 5,
			FileArea:  "draft",
			ItemID:    123,
			FileName:  "a.txt",
			FilePath:  "/",
		}, files[0])
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, map[string]interface{}{"token": "abc"})
	if !assert.NoError(t, err) {
		return
	}
	var resp TokenResponse
	err = Decode(&buf, &resp)
	if assert.NoError(t, err) {
		assert.Equal(t, TokenResponse{Token: "abc"}, resp)
	}
}

func TestFromMap(t *testing.T) {
	var resp TokenResponse
	err := FromMap(map[string]interface{}{
		"error":     "Invalid login, please try again",
		"errorcode": "invalidlogin",
		"extra":     []interface{}{1},
	}, &resp)
	if assert.NoError(t, err) {
		assert.Equal(t, TokenResponse{
			Error:     "Invalid login, please try again",
			ErrorCode: "invalidlogin",
		}, resp)
	}
}

func TestExceptionFrom(t *testing.T) {
	ex, isException := ExceptionFrom(map[string]interface{}{
		"exception": "moodle_exception",
		"message":   "m",
		"errorcode": "e",
	})
	if assert.True(t, isException) {
		assert.Equal(t, Exception{
			Exception: "moodle_exception",
			Message:   "m",
			ErrorCode: "e",
		}, ex)
	}

	ex, isException = ExceptionFrom(map[string]interface{}{
		"exception": "webservice_access_exception",
		"message":   "Access control exception",
		"debuginfo": map[string]interface{}{"weird": true},
	})
	if assert.True(t, isException) {
		assert.Equal(t, Exception{
			Exception: "webservice_access_exception",
			Message:   "Access control exception",
			DebugInfo: `{"weird":true}`,
		}, ex)
	}

	_, isException = ExceptionFrom(map[string]interface{}{"message": "hi"})
	assert.False(t, isException)

	_, isException = ExceptionFrom("exception")
	assert.False(t, isException)

	_, isException = ExceptionFrom(nil)
	assert.False(t, isException)
}

func TestTextField(t *testing.T) {
	m := map[string]interface{}{
		"s":    "text",
		"n":    nil,
		"i":    uint64(42),
		"obj":  map[string]interface{}{"b": "2", "a": "1"},
		"list": []interface{}{"a", "b"},
	}
	assert.Equal(t, "text", TextField(m, "s"))
	assert.Equal(t, "", TextField(m, "n"))
	assert.Equal(t, "", TextField(m, "missing"))
	assert.Equal(t, "42", TextField(m, "i"))
	assert.Equal(t, `{"a":"1","b":"2"}`, TextField(m, "obj"))
	assert.Equal(t, `["a","b"]`, TextField(m, "list"))
}

func TestTokenErrorFrom(t *testing.T) {
	resp := TokenErrorFrom(map[string]interface{}{
		"error":      "Invalid login",
		"errorcode":  "invalidlogin",
		"stacktrace": []interface{}{"a", "b"},
		"debuginfo":  map[string]interface{}{"sql": "x"},
		"token":      "ignored",
	})
	assert.Equal(t, TokenResponse{
		Error:      "Invalid login",
		ErrorCode:  "invalidlogin",
		Stacktrace: `["a","b"]`,
		DebugInfo:  `{"sql":"x"}`,
	}, resp)
}
