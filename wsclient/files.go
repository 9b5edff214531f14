// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/sirupsen/logrus"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
)

// ErrNoFilePath is returned from Download and DownloadTo if no file
// path was given.
var ErrNoFilePath = wsdata.ErrConfiguration{Reason: "No file path to download"}

// DownloadOptions are optional settings for Download.
type DownloadOptions struct {
	// Preview requests a preview rendition rather than the file
	// itself, e.g. "thumb", "tinyicon", or "bigthumb".
	Preview string

	// Offline asks the server not to count the download as a
	// user view, as the mobile app does for synchronization.
	Offline bool

	// InsecureSkipVerify disables TLS certificate verification
	// for this request only.
	InsecureSkipVerify bool
}

// Download retrieves a file through the web service file endpoint.
// path is the file path as it appears after pluginfile.php in a file
// URL, e.g. "/21/mod_resource/content/0/notes.pdf".  The content is
// returned as-is.
func (c *Client) Download(ctx context.Context, path string, opts *DownloadOptions) ([]byte, error) {
	var buf bytes.Buffer
	_, err := c.DownloadTo(ctx, &buf, path, opts)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadTo retrieves a file like Download, but copies it to w as it
// arrives.  Returns the number of bytes written.
func (c *Client) DownloadTo(ctx context.Context, w io.Writer, path string, opts *DownloadOptions) (n int64, err error) {
	const op = "download"
	start := c.clock.Now()
	defer func() {
		c.metrics.observe(op, c.clock.Now().Sub(start), err)
	}()

	if opts == nil {
		opts = &DownloadOptions{}
	}
	if c.origin == nil {
		return 0, wsdata.ErrNoURL
	}
	token, hasToken := c.Token()
	if !hasToken {
		return 0, wsdata.ErrNoToken
	}
	if path == "" {
		return 0, ErrNoFilePath
	}

	vars := map[string]interface{}{
		"token": token,
		"file":  path,
	}
	if opts.Preview != "" {
		vars["preview"] = opts.Preview
	}
	if opts.Offline {
		vars["offline"] = "1"
	}
	u, err := c.endpoint(downloadTemplate, vars)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}

	log := c.requestLog(op).WithField("file", path)
	resp, err := c.do(ctx, op, req, opts.InsecureSkipVerify, log)
	if err != nil {
		return 0, err
	}
	defer func() {
		err = firstError(err, resp.Body.Close())
	}()

	n, err = io.Copy(w, resp.Body)
	if err != nil {
		log.WithError(err).Error("Download interrupted")
		return n, wsdata.ErrTransport{Op: op, Err: err}
	}
	log.WithField("bytes", n).Debug("File downloaded")
	return n, nil
}

// errBodyAbandoned stops the upload body writer once the response has
// arrived.
var errBodyAbandoned = errors.New("upload body abandoned")

// File is one file to upload.
type File struct {
	// Name is the file name to store the content under.
	Name string

	// Content is read to the end during the upload.
	Content io.Reader
}

// UploadOptions are optional settings for Upload.
type UploadOptions struct {
	// FilePath is the directory within the draft area, e.g.
	// "/". Defaults to the root on the server side.
	FilePath string

	// ItemID selects an existing draft area to add the files to.
	// If zero or negative the server allocates a new draft area.
	ItemID int64

	// InsecureSkipVerify disables TLS certificate verification
	// for this request only.
	InsecureSkipVerify bool
}

// Upload stores files in the user's draft file area through the web
// service upload endpoint, and returns the server's description of
// each stored file.  The ItemID of the results identifies the draft
// area, which can then be passed to web service functions that attach
// files.
func (c *Client) Upload(ctx context.Context, files []File, opts *UploadOptions) (uploaded []wsdata.UploadedFile, err error) {
	const op = "upload"
	start := c.clock.Now()
	defer func() {
		c.metrics.observe(op, c.clock.Now().Sub(start), err)
	}()

	if opts == nil {
		opts = &UploadOptions{}
	}
	if c.origin == nil {
		return nil, wsdata.ErrNoURL
	}
	token, hasToken := c.Token()
	if !hasToken {
		return nil, wsdata.ErrNoToken
	}
	if len(files) == 0 {
		return nil, wsdata.ErrNoFiles
	}

	vars := map[string]interface{}{"token": token}
	if opts.FilePath != "" {
		vars["filepath"] = opts.FilePath
	}
	if opts.ItemID > 0 {
		vars["itemid"] = strconv.FormatInt(opts.ItemID, 10)
	}
	u, err := c.endpoint(uploadTemplate, vars)
	if err != nil {
		return nil, err
	}

	// Stream the multipart body rather than buffering every file
	reader, writer := io.Pipe()
	mw := multipart.NewWriter(writer)
	finished := make(chan error, 1)
	go func() {
		err := writeFiles(mw, files)
		err = firstError(err, mw.Close())
		_ = writer.CloseWithError(err)
		finished <- err
	}()
	defer func() {
		if werr := <-finished; werr != nil && werr != errBodyAbandoned {
			// a truncated body never yields a usable result
			uploaded = nil
			err = firstError(err, werr)
		}
	}()

	req, err := http.NewRequest(http.MethodPost, u.String(), reader)
	if err != nil {
		_ = reader.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	log := c.requestLog(op).WithFields(logrus.Fields{
		"files":  len(files),
		"itemid": opts.ItemID,
	})
	resp, err := c.do(ctx, op, req, opts.InsecureSkipVerify, log)
	// The server has answered; anything it did not read is not needed
	_ = reader.CloseWithError(errBodyAbandoned)
	if err != nil {
		return nil, err
	}
	_, value, err := decodeBody(op, resp)
	if err != nil {
		log.WithError(err).Error("Unable to parse server response")
		return nil, err
	}

	switch v := value.(type) {
	case []interface{}:
		uploaded = make([]wsdata.UploadedFile, len(v))
		for i, item := range v {
			m, isMap := item.(map[string]interface{})
			if !isMap {
				return nil, wsdata.ErrParse{Op: op, Err: wsdata.ErrUnexpectedFormat}
			}
			if err := wsdata.FromMap(m, &uploaded[i]); err != nil {
				return nil, wsdata.ErrParse{Op: op, Err: err}
			}
		}
		log.Debug("Files uploaded")
		return uploaded, nil

	case map[string]interface{}:
		remote, isError := uploadError(v)
		if isError {
			log.WithField("errorcode", remote.ErrorCode).Error(remote.Message)
			return nil, remote
		}
	}

	log.Error("Unexpected response format")
	return nil, wsdata.ErrParse{Op: op, Err: wsdata.ErrUnexpectedFormat}
}

func writeFiles(mw *multipart.Writer, files []File) error {
	for i, file := range files {
		part, err := mw.CreateFormFile(fmt.Sprintf("file_%d", i+1), file.Name)
		if err != nil {
			return err
		}
		if file.Content != nil {
			if _, err = io.Copy(part, file.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

// uploadError recognizes the two failure shapes of the upload
// endpoint: a normal exception, and an object with "error".
func uploadError(m map[string]interface{}) (wsdata.ErrRemote, bool) {
	var remote wsdata.ErrRemote
	if ex, isException := wsdata.ExceptionFrom(m); isException {
		remote.FromException(ex)
		return remote, true
	}
	if _, hasError := m["error"]; hasError {
		resp := wsdata.TokenErrorFrom(m)
		remote.Message = resp.Error
		remote.ErrorCode = resp.ErrorCode
		remote.DebugInfo = resp.DebugInfo
		return remote, true
	}
	return remote, false
}
