// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package wstest provides an in-process imitation of a Moodle site's
// web service endpoints, for testing clients.  It implements the
// login, REST, file download, and file upload endpoints closely
// enough to exercise the client protocol, and records every request
// it receives.  Web service functions are whatever the test registers.
//
//     s := wstest.NewServer()
//     defer s.Close()
//     s.Handle("sum_get", func(args url.Values) (interface{}, error) {
//         ...
//     })
//     c, err := wsclient.New(wsclient.Config{URL: s.SiteURL(), Token: s.Token})
package wstest

import (
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/gorilla/mux"
	"github.com/urfave/negroni"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// Default credentials of a new server.
const (
	DefaultToken    = "Ex@mpleT0kenThat1s5upposedToB3Returned"
	DefaultUsername = "wsuser"
	DefaultPassword = "wsp@sswd"
	DefaultService  = "test-go-client"
	DefaultPrefix   = "/moodle"
)

// Function implements a web service function.  args holds every
// field of the request, including the protocol fields.  The returned
// value is JSON encoded; return a nil value for a JSON null.  A
// returned wsdata.ErrRemote is sent as that exception; any other
// error is sent as a generic moodle_exception.  A returned
// RawResponse is sent verbatim.
type Function func(args url.Values) (interface{}, error)

// RawResponse, returned from a Function, is written without any
// encoding.
type RawResponse struct {
	// Status is the HTTP status code; 0 means 200.
	Status int

	// ContentType defaults to application/json.
	ContentType string

	Body string
}

// Request is a record of one request the server received.
type Request struct {
	Method      string
	Path        string
	ContentType string

	// RawQuery is the URL query string exactly as sent, and
	// Query is its parsed form.
	RawQuery string
	Query    url.Values

	// Form holds the parameters from an
	// application/x-www-form-urlencoded or multipart body.
	Form url.Values

	// Files holds the file names of multipart uploads, in order.
	Files []string
}

// Server is a fake Moodle site.  Change its exported fields before
// making requests.
type Server struct {
	*httptest.Server

	// Token is the only token the server accepts, and the one it
	// issues to a successful login.
	Token string

	// PrivateToken is issued alongside Token, if not empty.
	PrivateToken string

	// Username, Password, and Service are the only credentials
	// the login endpoint accepts.
	Username string
	Password string
	Service  string

	// OnRequest, if non-nil, is called at the start of every
	// request.
	OnRequest func(*http.Request)

	lock       sync.Mutex
	functions  map[string]Function
	files      map[string][]byte
	requests   []Request
	nextItemID int64
}

// NewServer creates and starts a new fake site with the default
// credentials and no functions.  The site root is DefaultPrefix.
// Call Close when done.
func NewServer() *Server {
	return newServer(httptest.NewServer)
}

// NewTLSServer creates and starts a new fake site served over HTTPS
// with a self-signed certificate.
func NewTLSServer() *Server {
	return newServer(httptest.NewTLSServer)
}

func newServer(start func(http.Handler) *httptest.Server) *Server {
	s := &Server{
		Token:      DefaultToken,
		Username:   DefaultUsername,
		Password:   DefaultPassword,
		Service:    DefaultService,
		functions:  make(map[string]Function),
		files:      make(map[string][]byte),
		nextItemID: 1000,
	}
	s.Server = start(s.handler())
	return s
}

func (s *Server) handler() http.Handler {
	r := mux.NewRouter()
	site := r.PathPrefix(DefaultPrefix).Subrouter()
	site.Path(wsdata.LoginPath).Methods(http.MethodPost).HandlerFunc(s.login)
	site.Path(wsdata.RESTPath).Methods(http.MethodGet, http.MethodPost).HandlerFunc(s.rest)
	site.Path(wsdata.DownloadPath).Methods(http.MethodGet).HandlerFunc(s.download)
	site.Path(wsdata.UploadPath).Methods(http.MethodPost).HandlerFunc(s.upload)

	n := negroni.New(negroni.NewRecovery(), negroni.HandlerFunc(s.record))
	n.UseHandler(r)
	return n
}

// SiteURL returns the root URL of the fake site, suitable for
// wsclient.Config.URL.
func (s *Server) SiteURL() string {
	return s.URL + DefaultPrefix
}

// Handle registers a web service function.
func (s *Server) Handle(name string, f Function) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.functions[name] = f
}

// AddFile makes content available for download at path.
func (s *Server) AddFile(path string, content []byte) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.files[path] = content
}

// Requests returns a copy of the records of every request received
// so far.
func (s *Server) Requests() []Request {
	s.lock.Lock()
	defer s.lock.Unlock()
	result := make([]Request, len(s.requests))
	copy(result, s.requests)
	return result
}

// Reset forgets all of the recorded requests.
func (s *Server) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.requests = nil
}

// record is negroni middleware that parses the request form and keeps
// a record of the request.
func (s *Server) record(w http.ResponseWriter, req *http.Request, next http.HandlerFunc) {
	if s.OnRequest != nil {
		s.OnRequest(req)
	}

	rec := Request{
		Method:      req.Method,
		Path:        req.URL.Path,
		ContentType: req.Header.Get("Content-Type"),
		RawQuery:    req.URL.RawQuery,
		Query:       req.URL.Query(),
	}
	if err := req.ParseMultipartForm(32 << 20); err == http.ErrNotMultipart {
		_ = req.ParseForm()
	}
	rec.Form = req.PostForm
	if req.MultipartForm != nil {
		for _, field := range fileFields(req.MultipartForm) {
			for _, header := range req.MultipartForm.File[field] {
				rec.Files = append(rec.Files, header.Filename)
			}
		}
	}

	s.lock.Lock()
	s.requests = append(s.requests, rec)
	s.lock.Unlock()

	next(w, req)
}
