// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsclient

import (
	"context"
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/sirupsen/logrus"
	"net/http"
	"strings"
)

// CallOptions are per-call settings.  A nil *CallOptions is the same
// as the zero value.
type CallOptions struct {
	// Method is "GET" or "POST", case-insensitive.  Defaults to
	// GET.  POST avoids URL length limits for large arguments.
	Method string

	// Raw, if non-nil, sets moodlewssettingraw.  If true the
	// server returns text fields as stored, without running
	// format_text() on them.
	Raw *bool

	// FileURL, if non-nil, sets moodlewssettingfileurl.  If
	// false the server returns file references in their stored
	// form (@@PLUGINFILE@@) rather than rewriting them to
	// webservice/pluginfile.php URLs.
	FileURL *bool

	// Filter, if non-nil, sets moodlewssettingfilter, which
	// makes the server apply text filters when formatting.
	Filter *bool

	// InsecureSkipVerify disables TLS certificate verification
	// for this call only.
	InsecureSkipVerify bool
}

// Bool returns a pointer to b, for the optional settings in
// CallOptions.
func Bool(b bool) *bool {
	return &b
}

// callSettings maps each optional setting to its protocol field.  A
// setting that is nil is not sent at all, so the server default
// applies.
var callSettings = []struct {
	Field string
	Value func(*CallOptions) *bool
}{
	{wsdata.FieldSettingRaw, func(o *CallOptions) *bool { return o.Raw }},
	{wsdata.FieldSettingFileURL, func(o *CallOptions) *bool { return o.FileURL }},
	{wsdata.FieldSettingFilter, func(o *CallOptions) *bool { return o.Filter }},
}

// Call invokes a web service function and returns its decoded result.
//
// args holds the function's named arguments: nil, a map with string
// keys, or a struct (see wsdata.Form for how values are encoded).
// args is never modified.
//
// The result is whatever JSON value the function returned.  Objects
// are map[string]interface{}, arrays are []interface{}, and a
// function that returns nothing produces a nil result and a nil error.
// If the function raised an exception, returns wsdata.ErrRemote.
func (c *Client) Call(ctx context.Context, function string, args interface{}, opts *CallOptions) (interface{}, error) {
	_, value, err := c.invoke(ctx, function, args, opts)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// CallInto invokes a web service function like Call, and decodes its
// result into out, which must be of pointer type.  Struct fields are
// matched using `codec` or `json` tags.  If the function returned
// null, out is left untouched.
func (c *Client) CallInto(ctx context.Context, function string, args interface{}, opts *CallOptions, out interface{}) error {
	raw, value, err := c.invoke(ctx, function, args, opts)
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}
	err = wsdata.DecodeBytes(raw, out)
	if err != nil {
		return wsdata.ErrParse{Op: "call", Err: err}
	}
	return nil
}

// invoke performs one web service call, returning both the raw
// response body and its generic decoding.
func (c *Client) invoke(ctx context.Context, function string, args interface{}, opts *CallOptions) (raw []byte, value interface{}, err error) {
	const op = "call"
	start := c.clock.Now()
	defer func() {
		c.metrics.observe(op, c.clock.Now().Sub(start), err)
	}()

	if opts == nil {
		opts = &CallOptions{}
	}
	req, err := c.newCallRequest(function, args, opts)
	if err != nil {
		return nil, nil, err
	}

	log := c.requestLog(op).WithFields(logrus.Fields{
		"function": function,
		"method":   req.Method,
	})
	log.Debug("Calling web service function")

	resp, err := c.do(ctx, op, req, opts.InsecureSkipVerify, log)
	if err != nil {
		return nil, nil, err
	}
	raw, value, err = decodeBody(op, resp)
	if err != nil {
		log.WithError(err).Error("Unable to parse server response")
		return nil, nil, err
	}

	if value == nil {
		log.Debug("Null data returned")
		return raw, nil, nil
	}

	if ex, isException := wsdata.ExceptionFrom(value); isException {
		var remote wsdata.ErrRemote
		remote.FromException(ex)
		log.WithFields(logrus.Fields{
			"exception": remote.Exception,
			"errorcode": remote.ErrorCode,
		}).Error(remote.Message)
		if remote.DebugInfo != "" {
			log.Debug(remote.DebugInfo)
		}
		return nil, nil, remote
	}

	log.Debug("Data returned")
	return raw, value, nil
}

// newCallRequest validates a call and builds its HTTP request.  All of
// the checks here happen before any network I/O.
func (c *Client) newCallRequest(function string, args interface{}, opts *CallOptions) (*http.Request, error) {
	if c.origin == nil {
		return nil, wsdata.ErrNoURL
	}
	token, hasToken := c.Token()
	if !hasToken {
		return nil, wsdata.ErrNoToken
	}
	if function == "" {
		return nil, wsdata.ErrNoFunction
	}
	method := strings.ToUpper(opts.Method)
	switch method {
	case "":
		method = http.MethodGet
	case http.MethodGet, http.MethodPost:
	default:
		return nil, wsdata.ErrUnsupportedMethod{Method: opts.Method}
	}

	form, err := callForm(token, function, args, opts)
	if err != nil {
		return nil, err
	}

	if method == http.MethodGet {
		u, err := c.endpoint(restTemplate, nil)
		if err != nil {
			return nil, err
		}
		// The form leads with wsfunction, so the function
		// name is still easy to find in access logs
		u.RawQuery = form.Encode()
		return http.NewRequest(method, u.String(), nil)
	}

	// wsfunction is repeated in the URL for the access logs; the
	// token only goes in the body
	u, err := c.endpoint(restTemplate, map[string]interface{}{"wsfunction": function})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", formMediaType)
	return req, nil
}

// callForm builds the complete set of form fields for a call: the
// protocol fields, the flattened arguments, and any explicitly set
// options.
func callForm(token, function string, args interface{}, opts *CallOptions) (*wsdata.Form, error) {
	form := &wsdata.Form{}
	form.Add(wsdata.FieldFunction, function)
	form.Add(wsdata.FieldToken, token)
	form.Add(wsdata.FieldFormat, wsdata.RESTFormat)

	err := form.AddArgs(args, wsdata.IsProtocolField)
	if err != nil {
		return nil, err
	}

	for _, setting := range callSettings {
		if v := setting.Value(opts); v != nil {
			form.AddBool(setting.Field, *v)
		}
	}
	return form, nil
}
