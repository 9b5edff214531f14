// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package wsdata defines the wire-level data shared by the Moodle web
// service client and its test server: the request field names, the
// argument flattening rules, response shapes, and the error taxonomy.
// Nothing in this package performs network I/O.
//
// API Usage
//
// A client first exchanges a username and password for a token:
//
//     POST /login/token.php?service=moodle_mobile_app
//     Content-Type: application/x-www-form-urlencoded
//
//     username=alice&password=secret
//
// The service name travels in the URL, so it shows up in the web
// server access logs; the credentials only travel in the body.  The
// response is a JSON serialization of TokenResponse.
//
// Web service functions are then called through the REST server
// endpoint, with the token, function name, and response format as
// ordinary form fields:
//
//     GET /webservice/rest/server.php?wsfunction=core_webservice_get_site_info&wstoken=...&moodlewsrestformat=json
//
// A POST carries the same fields in an
// application/x-www-form-urlencoded body, and still repeats wsfunction
// in the URL query so that access logs show which function ran.
//
// Encoding Considerations
//
// Function arguments are flattened into bracketed key paths.  An
// argument a=[0, "b", 2] is sent as
//
//     a[0]=0&a[1]=b&a[2]=2
//
// and c=[{x:1, y:2}, {x:3, y:4}] as
//
//     c[0][x]=1&c[0][y]=2&c[1][x]=3&c[1][y]=4
//
// Booleans are sent as 1 and 0.  See Form for the complete rules.
//
// Errors
//
// The server reports most failures with HTTP 200 and a JSON body.  A
// failing login returns an object with an "error" field; a failing
// function call returns an object with an "exception" field, described
// by Exception.  Functions that return nothing produce the JSON
// literal null, which is a successful result.
package wsdata

// DefaultService is the web service profile requested when the caller
// does not name one.  It is enabled by default on most Moodle sites.
const DefaultService = "moodle_mobile_app"

// Endpoint paths, relative to the site root.
const (
	LoginPath    = "/login/token.php"
	RESTPath     = "/webservice/rest/server.php"
	DownloadPath = "/webservice/pluginfile.php"
	UploadPath   = "/webservice/upload.php"
)

// Protocol field names on the REST server endpoint.
const (
	FieldToken    = "wstoken"
	FieldFunction = "wsfunction"
	FieldFormat   = "moodlewsrestformat"

	FieldSettingRaw     = "moodlewssettingraw"
	FieldSettingFileURL = "moodlewssettingfileurl"
	FieldSettingFilter  = "moodlewssettingfilter"
)

// RESTFormat is the value of FieldFormat that asks for JSON rather
// than the legacy XML serialization.
const RESTFormat = "json"

// IsProtocolField returns true if name is one of the fields the
// client sets itself on every REST call.  Function arguments with
// these names are discarded.
func IsProtocolField(name string) bool {
	switch name {
	case FieldToken, FieldFunction, FieldFormat,
		FieldSettingRaw, FieldSettingFileURL, FieldSettingFilter:
		return true
	}
	return false
}

// TokenResponse is the body of a response from the login endpoint.
// Exactly one of Token and Error is expected to be set.
type TokenResponse struct {
	// Token is the web service token on success.
	Token string `mapstructure:"token" codec:"token"`

	// PrivateToken is a second, longer-lived token some Moodle
	// versions return for the mobile app service.  It is not
	// needed for web service calls.
	PrivateToken string `mapstructure:"privatetoken" codec:"privatetoken"`

	// Error is the human-readable failure message.
	Error string `mapstructure:"error" codec:"error"`

	// ErrorCode is the Moodle string identifier of the failure,
	// e.g. "invalidlogin".
	ErrorCode string `mapstructure:"errorcode" codec:"errorcode"`

	// Stacktrace and DebugInfo are only populated when the site
	// runs in developer debugging mode.
	Stacktrace string `mapstructure:"stacktrace" codec:"stacktrace"`
	DebugInfo  string `mapstructure:"debuginfo" codec:"debuginfo"`
}

// Exception is the body of a web service call that raised on the
// server side.
type Exception struct {
	// Exception is the PHP exception class, e.g. "moodle_exception"
	// or "invalid_parameter_exception".
	Exception string `mapstructure:"exception" codec:"exception"`

	// Message is the human-readable message.
	Message string `mapstructure:"message" codec:"message"`

	// ErrorCode is the Moodle string identifier of the error.
	ErrorCode string `mapstructure:"errorcode" codec:"errorcode"`

	// DebugInfo is extra diagnostic text, only present in
	// developer debugging mode.
	DebugInfo string `mapstructure:"debuginfo" codec:"debuginfo"`
}

// UploadedFile describes one file stored in a draft area by the upload
// endpoint.
type UploadedFile struct {
	Component string `mapstructure:"component" codec:"component"`
	ContextID int64  `mapstructure:"contextid" codec:"contextid"`
	UserID    string `mapstructure:"userid" codec:"userid"`
	FileArea  string `mapstructure:"filearea" codec:"filearea"`
	FileName  string `mapstructure:"filename" codec:"filename"`
	FilePath  string `mapstructure:"filepath" codec:"filepath"`
	ItemID    int64  `mapstructure:"itemid" codec:"itemid"`
	License   string `mapstructure:"license" codec:"license"`
	Author    string `mapstructure:"author" codec:"author"`
	Source    string `mapstructure:"source" codec:"source"`
}
