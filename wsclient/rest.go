// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsclient

// This file provides the HTTP plumbing shared by all of the endpoints.

import (
	"bytes"
	"context"
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/jtacoma/uritemplates"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
)

// formMediaType is the content type of login and REST POST bodies.
const formMediaType = "application/x-www-form-urlencoded"

// URI templates for the endpoints, relative to the site root.
const (
	loginTemplate    = "{+root}" + wsdata.LoginPath + "{?service}"
	restTemplate     = "{+root}" + wsdata.RESTPath + "{?wsfunction}"
	downloadTemplate = "{+root}" + wsdata.DownloadPath + "{?token,file,preview,offline}"
	uploadTemplate   = "{+root}" + wsdata.UploadPath + "{?token,filepath,itemid}"
)

// endpoint expands one of the endpoint templates against the site
// root.  vars holds string values only; a variable that is absent
// from vars is left out of the URL entirely.
func (c *Client) endpoint(template string, vars map[string]interface{}) (*url.URL, error) {
	if c.origin == nil {
		return nil, wsdata.ErrNoURL
	}

	tmpl, err := uritemplates.Parse(template)
	if err != nil {
		return nil, err
	}

	all := map[string]interface{}{"root": c.origin.String()}
	for k, v := range vars {
		all[k] = v
	}
	expanded, err := tmpl.Expand(all)
	if err != nil {
		return nil, err
	}
	return url.Parse(expanded)
}

// requestLog returns a logger annotated with the operation name and a
// fresh request identifier, so that all of the messages about one
// exchange can be correlated.
func (c *Client) requestLog(op string) logrus.FieldLogger {
	return c.log.WithFields(logrus.Fields{
		"op":      op,
		"request": uuid.NewV4().String(),
	})
}

// do performs a single HTTP exchange.  It never retries.  If the
// request could not be sent, or the response status is not a 2xx
// success, returns ErrTransport and the response body is already
// closed; otherwise the caller must close the body.
func (c *Client) do(ctx context.Context, op string, req *http.Request, insecure bool, log logrus.FieldLogger) (*http.Response, error) {
	req = req.WithContext(ctx)
	log.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
	}).Debug("Sending request")

	resp, err := c.client(insecure).Do(req)
	if err != nil {
		// The error from http.Client includes the full URL,
		// which may contain a token
		if uerr, isURLError := err.(*url.Error); isURLError {
			err = uerr.Err
		}
		log.WithError(err).Error("Request failed")
		return nil, wsdata.ErrTransport{Op: op, Err: err}
	}

	if err = checkHTTPStatus(op, resp); err != nil {
		log.WithField("status", resp.StatusCode).Error("Unexpected response status code")
		return nil, err
	}
	return resp, nil
}

// checkHTTPStatus examines an HTTP response and returns an error if
// it is not successful.  On error the body has been drained and
// closed; it is never parsed.
func checkHTTPStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.Body != nil {
		_, _ = io.Copy(ioutil.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	return wsdata.ErrTransport{
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
}

// readBody reads and closes an entire response body.
func readBody(op string, resp *http.Response) (body []byte, err error) {
	defer func() {
		if cerr := resp.Body.Close(); err == nil && cerr != nil {
			err = wsdata.ErrTransport{Op: op, Err: cerr}
		}
	}()
	body, err = ioutil.ReadAll(resp.Body)
	if err != nil {
		err = wsdata.ErrTransport{Op: op, Err: err}
	}
	return
}

// decodeBody reads a JSON response body and decodes it generically.
// A body that is not JSON produces ErrParse.  Objects decode as
// map[string]interface{}.  An empty body is also an ErrParse; a
// function with no result still sends "null".
func decodeBody(op string, resp *http.Response) (raw []byte, value interface{}, err error) {
	raw, err = readBody(op, resp)
	if err != nil {
		return nil, nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil, wsdata.ErrParse{Op: op, Err: io.ErrUnexpectedEOF}
	}
	err = wsdata.DecodeBytes(raw, &value)
	if err != nil {
		return nil, nil, wsdata.ErrParse{Op: op, Err: err}
	}
	return raw, value, nil
}

func firstError(e1, e2 error) error {
	if e1 != nil {
		return e1
	}
	return e2
}
