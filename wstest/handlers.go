// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wstest

import (
	"errors"
	"fmt"
	"github.com/diffeo/go-moodle/wsdata"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"path"
	"sort"
	"strconv"
)

// Context and user that uploaded files belong to.
const (
	draftContextID = 5
	draftUserID    = "2"
)

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = wsdata.Encode(w, v)
}

func writeRaw(w http.ResponseWriter, raw RawResponse) {
	contentType := raw.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	status := raw.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(raw.Body))
}

var errInvalidToken = wsdata.ErrRemote{
	Exception: "moodle_exception",
	Message:   "Invalid token - token not found",
	ErrorCode: "invalidtoken",
}

// login implements /login/token.php.  Like Moodle, it reports failures
// with HTTP 200 and an "error" object.
func (s *Server) login(w http.ResponseWriter, req *http.Request) {
	if req.URL.Query().Get("service") != s.Service {
		writeJSON(w, map[string]interface{}{
			"error":      "Web service is not available (it doesn't exist or might be disabled)",
			"errorcode":  "servicenotavailable",
			"stacktrace": nil,
			"debuginfo":  nil,
		})
		return
	}
	if req.PostForm.Get("username") != s.Username || req.PostForm.Get("password") != s.Password {
		writeJSON(w, map[string]interface{}{
			"error":      "Invalid login, please try again",
			"errorcode":  "invalidlogin",
			"stacktrace": nil,
			"debuginfo":  nil,
		})
		return
	}
	resp := map[string]interface{}{"token": s.Token}
	if s.PrivateToken != "" {
		resp["privatetoken"] = s.PrivateToken
	}
	writeJSON(w, resp)
}

// rest implements /webservice/rest/server.php.
func (s *Server) rest(w http.ResponseWriter, req *http.Request) {
	args := req.Form

	if args.Get(wsdata.FieldFormat) != wsdata.RESTFormat {
		writeRaw(w, RawResponse{
			ContentType: "application/xml",
			Body:        `<?xml version="1.0" encoding="UTF-8" ?><EXCEPTION class="moodle_exception"><ERRORCODE>invalidresponseformat</ERRORCODE></EXCEPTION>`,
		})
		return
	}
	if args.Get(wsdata.FieldToken) != s.Token {
		writeJSON(w, errInvalidToken.ToException())
		return
	}

	name := args.Get(wsdata.FieldFunction)
	s.lock.Lock()
	f := s.functions[name]
	s.lock.Unlock()
	if f == nil {
		writeJSON(w, wsdata.Exception{
			Exception: "dml_missing_record_exception",
			Message:   "Can't find data record in database table external_functions.",
			ErrorCode: "invalidrecord",
		})
		return
	}

	result, err := f(args)
	if err != nil {
		var remote wsdata.ErrRemote
		if !errors.As(err, &remote) {
			remote = wsdata.ErrRemote{
				Exception: "moodle_exception",
				Message:   err.Error(),
				ErrorCode: "generalexceptionmessage",
			}
		}
		writeJSON(w, remote.ToException())
		return
	}
	if raw, isRaw := result.(RawResponse); isRaw {
		writeRaw(w, raw)
		return
	}
	writeJSON(w, result)
}

// download implements /webservice/pluginfile.php.
func (s *Server) download(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	if query.Get("token") != s.Token {
		http.Error(w, "Invalid token", http.StatusForbidden)
		return
	}
	s.lock.Lock()
	content, present := s.files[query.Get("file")]
	s.lock.Unlock()
	if !present {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// upload implements /webservice/upload.php.  Uploaded files become
// downloadable at their draft area paths.
func (s *Server) upload(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	if query.Get("token") != s.Token {
		writeJSON(w, errInvalidToken.ToException())
		return
	}
	if req.MultipartForm == nil || len(req.MultipartForm.File) == 0 {
		writeJSON(w, map[string]interface{}{
			"error":     "No files were uploaded",
			"errorcode": "nofile",
		})
		return
	}

	filepath := query.Get("filepath")
	if filepath == "" {
		filepath = "/"
	}
	itemID, _ := strconv.ParseInt(query.Get("itemid"), 10, 64)

	s.lock.Lock()
	defer s.lock.Unlock()
	if itemID <= 0 {
		itemID = s.nextItemID
		s.nextItemID++
	}

	var result []wsdata.UploadedFile
	for _, field := range fileFields(req.MultipartForm) {
		for _, header := range req.MultipartForm.File[field] {
			content, err := readPart(header)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			stored := fmt.Sprintf("/%d/user/draft/%d%s", draftContextID, itemID,
				path.Join(filepath, header.Filename))
			s.files[stored] = content
			result = append(result, wsdata.UploadedFile{
				Component: "user",
				ContextID: draftContextID,
				UserID:    draftUserID,
				FileArea:  "draft",
				FileName:  header.Filename,
				FilePath:  filepath,
				ItemID:    itemID,
				License:   "allrightsreserved",
			})
		}
	}
	writeJSON(w, result)
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ioutil.ReadAll(f)
}

// fileFields returns the names of the file fields of a multipart form
// in sorted order.
func fileFields(form *multipart.Form) []string {
	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
