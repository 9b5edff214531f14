// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wstest

import (
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/stretchr/testify/assert"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func get(t *testing.T, u string) (int, string) {
	resp, err := http.Get(u)
	if err != nil {
		t.Fatalf("GET %v: %v", u, err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("GET %v: %v", u, err)
	}
	return resp.StatusCode, string(body)
}

func TestRESTFormat(t *testing.T) {
	s := NewServer()
	defer s.Close()
	s.Handle("ping", func(url.Values) (interface{}, error) {
		return "pong", nil
	})

	query := url.Values{}
	query.Set(wsdata.FieldFunction, "ping")
	query.Set(wsdata.FieldToken, s.Token)
	status, body := get(t, s.SiteURL()+wsdata.RESTPath+"?"+query.Encode())
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, strings.HasPrefix(body, "<?xml"), body)

	query.Set(wsdata.FieldFormat, wsdata.RESTFormat)
	status, body = get(t, s.SiteURL()+wsdata.RESTPath+"?"+query.Encode())
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `"pong"`, body)
}

func TestUnknownPath(t *testing.T) {
	s := NewServer()
	defer s.Close()

	status, _ := get(t, s.URL+wsdata.RESTPath)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = get(t, s.SiteURL()+"/webservice/soap/server.php")
	assert.Equal(t, http.StatusNotFound, status)

	// still recorded
	assert.Len(t, s.Requests(), 2)
}

func TestRecoversFromPanics(t *testing.T) {
	s := NewServer()
	defer s.Close()
	s.Handle("boom", func(url.Values) (interface{}, error) {
		panic("boom")
	})

	query := url.Values{}
	query.Set(wsdata.FieldFunction, "boom")
	query.Set(wsdata.FieldToken, s.Token)
	query.Set(wsdata.FieldFormat, wsdata.RESTFormat)
	status, _ := get(t, s.SiteURL()+wsdata.RESTPath+"?"+query.Encode())
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestDownloadToken(t *testing.T) {
	s := NewServer()
	defer s.Close()
	s.AddFile("/1/a.txt", []byte("a"))

	status, _ := get(t, s.SiteURL()+wsdata.DownloadPath+"?token=wrong&file=/1/a.txt")
	assert.Equal(t, http.StatusForbidden, status)
	status, body := get(t, s.SiteURL()+wsdata.DownloadPath+"?token="+url.QueryEscape(s.Token)+"&file=/1/a.txt")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a", body)
}
