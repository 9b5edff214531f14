// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsdata

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorStatus describes errors that correspond to specific HTTP status
// codes.
type ErrorStatus interface {
	// HTTPStatus returns the HTTP status code for this error.
	HTTPStatus() int
}

// ErrConfiguration is returned when a client is missing something it
// needs before it can make a request at all.  These are always
// detected before any network I/O.
type ErrConfiguration struct {
	Reason string
}

func (e ErrConfiguration) Error() string {
	return e.Reason
}

// ErrNoURL is returned from any network operation on a client that
// was created without a site URL.
var ErrNoURL = ErrConfiguration{Reason: "No Moodle site URL configured"}

// ErrNoToken is returned from web service calls made before a token
// has been obtained or set.
var ErrNoToken = ErrConfiguration{Reason: "No web service token; authenticate first"}

// ErrNoCredentials is returned from authentication if neither a
// token nor a username was supplied.
var ErrNoCredentials = ErrConfiguration{Reason: "Either a token or a username and password are required"}

// ErrAmbiguousCredentials is returned from authentication if both a
// token and a username were supplied.
var ErrAmbiguousCredentials = ErrConfiguration{Reason: "Supply either a token or a username and password, not both"}

// ErrNoFunction is returned from a web service call with an empty
// function name.
var ErrNoFunction = ErrConfiguration{Reason: "No web service function name"}

// ErrNoFiles is returned from an upload with nothing to upload.
var ErrNoFiles = ErrConfiguration{Reason: "No files to upload"}

// ErrUnexpectedFormat is the cause of an ErrParse when the response
// was valid JSON but not any of the shapes the endpoint is documented
// to return.
var ErrUnexpectedFormat = errors.New("Unexpected response format")

// ErrTrailingData is the cause of an ErrParse when a response body
// held a JSON value followed by something other than whitespace.
var ErrTrailingData = errors.New("Unexpected data after JSON value")

// ErrBadArgument is returned when a web service argument contains a
// value that cannot be flattened into form fields, such as a channel
// or a map with non-string keys.
type ErrBadArgument struct {
	// Key is the flattened key path of the value, or empty if
	// the top-level arguments themselves are unusable.
	Key string

	// Type is the Go type of the offending value.
	Type string
}

func (e ErrBadArgument) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("Web service arguments must be a map or struct, not %v", e.Type)
	}
	return fmt.Sprintf("Cannot encode %v value for argument %q", e.Type, e.Key)
}

// ErrUnsupportedMethod is returned when a caller asks for an HTTP
// method other than GET or POST.
type ErrUnsupportedMethod struct {
	Method string
}

func (e ErrUnsupportedMethod) Error() string {
	return fmt.Sprintf("Unsupported HTTP method %q (only GET and POST)", e.Method)
}

// HTTPStatus returns a fixed 405 Method Not Allowed status code.
func (e ErrUnsupportedMethod) HTTPStatus() int {
	return http.StatusMethodNotAllowed
}

// ErrTransport is returned when an exchange with the server did not
// produce a usable response: either the request itself failed, or the
// server returned a non-success HTTP status.
type ErrTransport struct {
	// Op names the endpoint: "login", "call", "download", or
	// "upload".
	Op string

	// StatusCode is the HTTP status code, or 0 if no response
	// was received.
	StatusCode int

	// Status is the HTTP status line, e.g. "503 Service
	// Unavailable", if there was a response.
	Status string

	// Err is the underlying error if no response was received.
	Err error
}

func (e ErrTransport) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Op, e.Err)
	}
	if e.Status != "" {
		return fmt.Sprintf("%v: unexpected response status %v", e.Op, e.Status)
	}
	return fmt.Sprintf("%v: unexpected response status code %d", e.Op, e.StatusCode)
}

// Unwrap returns the underlying error, if any.
func (e ErrTransport) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code the server sent, or 502 Bad
// Gateway if there was no response at all.
func (e ErrTransport) HTTPStatus() int {
	if e.StatusCode == 0 {
		return http.StatusBadGateway
	}
	return e.StatusCode
}

// ErrParse is returned when a response body that should be JSON
// could not be decoded, or decoded to an unexpected shape.
type ErrParse struct {
	Op  string
	Err error
}

func (e ErrParse) Error() string {
	return fmt.Sprintf("%v: unable to parse server response: %v", e.Op, e.Err)
}

// Unwrap returns the underlying decoding error.
func (e ErrParse) Unwrap() error {
	return e.Err
}

// ErrAuthentication is returned when the login endpoint refused the
// supplied credentials.
type ErrAuthentication struct {
	Message    string
	ErrorCode  string
	Stacktrace string
	DebugInfo  string
}

func (e ErrAuthentication) Error() string {
	if e.ErrorCode == "" {
		return "Authentication failed: " + e.Message
	}
	return fmt.Sprintf("Authentication failed: %v [%v]", e.Message, e.ErrorCode)
}

// HTTPStatus returns a fixed 401 Unauthorized status code.
func (e ErrAuthentication) HTTPStatus() int {
	return http.StatusUnauthorized
}

// FromTokenResponse builds an authentication error from a failed
// login response.
func (e *ErrAuthentication) FromTokenResponse(resp TokenResponse) {
	e.Message = resp.Error
	e.ErrorCode = resp.ErrorCode
	e.Stacktrace = resp.Stacktrace
	e.DebugInfo = resp.DebugInfo
}

// ErrRemote is returned when the server accepted a web service call
// but the function raised an exception.
type ErrRemote struct {
	Exception string
	Message   string
	ErrorCode string

	// DebugInfo is diagnostic only; it is frequently empty.
	DebugInfo string
}

func (e ErrRemote) Error() string {
	return fmt.Sprintf("%v: %v [%v]", e.Exception, e.Message, e.ErrorCode)
}

// FromException populates a remote error from a decoded exception
// body.
func (e *ErrRemote) FromException(ex Exception) {
	e.Exception = ex.Exception
	e.Message = ex.Message
	e.ErrorCode = ex.ErrorCode
	e.DebugInfo = ex.DebugInfo
}

// ToException converts e back to its wire representation.
func (e ErrRemote) ToException() Exception {
	return Exception{
		Exception: e.Exception,
		Message:   e.Message,
		ErrorCode: e.ErrorCode,
		DebugInfo: e.DebugInfo,
	}
}
