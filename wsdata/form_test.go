// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsdata

import (
	"github.com/stretchr/testify/assert"
	"net/url"
	"testing"
	"time"
)

func TestFlattenArgs(t *testing.T) {
	tests := []struct {
		Name string
		Args interface{}
		Want []Pair
	}{
		{
			Name: "nil",
			Args: nil,
			Want: []Pair{},
		},
		{
			Name: "scalars",
			Args: map[string]interface{}{"a": 2, "b": "three", "c": 1.5},
			Want: []Pair{{"a", "2"}, {"b", "three"}, {"c", "1.5"}},
		},
		{
			Name: "array of scalars",
			Args: map[string]interface{}{"a": []interface{}{0, "b", 2}},
			Want: []Pair{{"a[0]", "0"}, {"a[1]", "b"}, {"a[2]", "2"}},
		},
		{
			Name: "array of objects",
			Args: map[string]interface{}{
				"c": []interface{}{
					map[string]interface{}{"x": 1, "y": 2},
					map[string]interface{}{"x": 3, "y": 4},
				},
			},
			Want: []Pair{
				{"c[0][x]", "1"}, {"c[0][y]", "2"},
				{"c[1][x]", "3"}, {"c[1][y]", "4"},
			},
		},
		{
			Name: "objects of objects",
			Args: map[string]interface{}{
				"options": map[string]interface{}{
					"user": map[string]string{"id": "7"},
					"deep": map[string][]int{"ids": {8, 9}},
				},
			},
			Want: []Pair{
				{"options[deep][ids][0]", "8"},
				{"options[deep][ids][1]", "9"},
				{"options[user][id]", "7"},
			},
		},
		{
			Name: "booleans",
			Args: map[string]bool{"yes": true, "no": false},
			Want: []Pair{{"no", "0"}, {"yes", "1"}},
		},
		{
			Name: "nil values skipped",
			Args: map[string]interface{}{"a": nil, "b": (*int)(nil), "c": "x"},
			Want: []Pair{{"c", "x"}},
		},
		{
			Name: "empty slice",
			Args: map[string]interface{}{"a": []string{}},
			Want: []Pair{},
		},
		{
			Name: "time",
			Args: map[string]interface{}{"since": time.Unix(1500000000, 0)},
			Want: []Pair{{"since", "1500000000"}},
		},
		{
			Name: "bytes",
			Args: map[string]interface{}{"text": []byte("hello")},
			Want: []Pair{{"text", "hello"}},
		},
	}
	for _, test := range tests {
		var f Form
		err := f.AddArgs(test.Args, nil)
		if assert.NoError(t, err, test.Name) {
			assert.Equal(t, test.Want, f.Pairs(), test.Name)
		}
	}
}

type courseQuery struct {
	Field  string   `mapstructure:"field"`
	Values []string `mapstructure:"values"`
}

type searchArgs struct {
	Criteria []courseQuery `mapstructure:"criteria"`
	Page     int           `mapstructure:"page"`
}

func TestFlattenStruct(t *testing.T) {
	args := &searchArgs{
		Criteria: []courseQuery{
			{Field: "search", Values: []string{"math"}},
		},
		Page: 2,
	}
	var f Form
	err := f.AddArgs(args, nil)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, []Pair{
		{"criteria[0][field]", "search"},
		{"criteria[0][values][0]", "math"},
		{"page", "2"},
	}, f.Pairs())
}

func TestFlattenSkip(t *testing.T) {
	var f Form
	err := f.AddArgs(map[string]interface{}{
		"wstoken": "stolen",
		"courses": []int{1},
	}, IsProtocolField)
	if assert.NoError(t, err) {
		assert.Equal(t, []Pair{{"courses[0]", "1"}}, f.Pairs())
	}
}

func TestFlattenBadArgument(t *testing.T) {
	var f Form
	f.Add("keep", "me")

	err := f.AddArgs(map[string]interface{}{
		"a": "fine",
		"b": map[string]interface{}{"ch": make(chan int)},
	}, nil)
	if assert.Error(t, err) {
		assert.Equal(t, ErrBadArgument{Key: "b[ch]", Type: "chan int"}, err)
	}
	// a failed AddArgs does not leave partial output
	assert.Equal(t, []Pair{{"keep", "me"}}, f.Pairs())

	err = f.AddArgs(map[int]string{1: "x"}, nil)
	assert.Equal(t, ErrBadArgument{Type: "map[int]string"}, err)

	err = f.AddArgs(17, nil)
	assert.Equal(t, ErrBadArgument{Type: "int"}, err)
}

func TestFlattenDoesNotModifyArgs(t *testing.T) {
	args := map[string]interface{}{
		"a": []interface{}{1, 2},
	}
	var f Form
	f.Add(FieldToken, "t")
	err := f.AddArgs(args, nil)
	if assert.NoError(t, err) {
		assert.Equal(t, map[string]interface{}{
			"a": []interface{}{1, 2},
		}, args)
	}
}

func TestFormEncode(t *testing.T) {
	var f Form
	err := f.AddArgs(map[string]interface{}{
		"a": []interface{}{0, "b", 2},
		"c": []interface{}{
			map[string]int{"x": 1, "y": 2},
			map[string]int{"x": 3, "y": 4},
		},
	}, nil)
	if !assert.NoError(t, err) {
		return
	}

	encoded := f.Encode()
	assert.Equal(t,
		"a%5B0%5D=0&a%5B1%5D=b&a%5B2%5D=2&"+
			"c%5B0%5D%5Bx%5D=1&c%5B0%5D%5By%5D=2&c%5B1%5D%5Bx%5D=3&c%5B1%5D%5By%5D=4",
		encoded)

	unescaped, err := url.QueryUnescape(encoded)
	if assert.NoError(t, err) {
		assert.Equal(t,
			"a[0]=0&a[1]=b&a[2]=2&c[0][x]=1&c[0][y]=2&c[1][x]=3&c[1][y]=4",
			unescaped)
	}

	parsed, err := url.ParseQuery(encoded)
	if assert.NoError(t, err) {
		assert.Equal(t, f.Values(), parsed)
	}
}

func TestFormAccessors(t *testing.T) {
	var f Form
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.Has("a"))

	f.Add("a", "1")
	f.Add("a", "2")
	f.AddBool("b", true)
	assert.Equal(t, 3, f.Len())
	assert.True(t, f.Has("a"))
	assert.Equal(t, "1", f.Get("a"))
	assert.Equal(t, "1", f.Get("b"))
	assert.Equal(t, "", f.Get("c"))
	assert.Equal(t, url.Values{"a": {"1", "2"}, "b": {"1"}}, f.Values())
	assert.Equal(t, "a=1&a=2&b=1", f.Encode())

	// Pairs is a copy
	pairs := f.Pairs()
	pairs[0].Value = "changed"
	assert.Equal(t, "1", f.Get("a"))
}
