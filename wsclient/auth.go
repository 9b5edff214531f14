// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package wsclient

import (
	"context"
	"github.com/diffeo/go-moodle/wsdata"
	"net/http"
	"strings"
)

// Credentials are what a client presents to get a web service token.
// Set either Token, or Username and Password.
type Credentials struct {
	// Token is a token obtained some other way, for instance from
	// the site administrator's "Manage tokens" page.
	Token string

	// Username and Password are exchanged for a token at the
	// login endpoint.  The password may be empty if the site
	// allows that.
	Username string
	Password string
}

// Authenticate gives the client a web service token.
//
// If creds.Token is set, it becomes the client's token immediately
// and nothing is sent over the network.  Otherwise creds.Username and
// creds.Password are posted to the login endpoint.  The service name
// is sent in the URL query, but the username and password are only
// sent in the request body so that they do not appear in web server
// access logs, and they are never logged here.
//
// If the server refuses the credentials, returns
// wsdata.ErrAuthentication and leaves any existing token in place.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (err error) {
	const op = "login"
	start := c.clock.Now()
	defer func() {
		c.metrics.observe(op, c.clock.Now().Sub(start), err)
	}()

	switch {
	case creds.Token != "" && creds.Username != "":
		return wsdata.ErrAmbiguousCredentials
	case creds.Token != "":
		c.SetToken(creds.Token)
		return nil
	case creds.Username == "":
		return wsdata.ErrNoCredentials
	}

	log := c.requestLog(op).WithField("service", c.service)
	log.Debug("Requesting token")

	u, err := c.endpoint(loginTemplate, map[string]interface{}{"service": c.service})
	if err != nil {
		return err
	}

	var body wsdata.Form
	body.Add("username", creds.Username)
	body.Add("password", creds.Password)
	req, err := http.NewRequest(http.MethodPost, u.String(), strings.NewReader(body.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", formMediaType)

	resp, err := c.do(ctx, op, req, false, log)
	if err != nil {
		return err
	}
	_, value, err := decodeBody(op, resp)
	if err != nil {
		log.WithError(err).Error("Unable to parse server response")
		return err
	}

	m, isMap := value.(map[string]interface{})
	if !isMap {
		log.Error("Unexpected response format")
		return wsdata.ErrParse{Op: op, Err: wsdata.ErrUnexpectedFormat}
	}
	if _, hasError := m["error"]; hasError {
		var authErr wsdata.ErrAuthentication
		authErr.FromTokenResponse(wsdata.TokenErrorFrom(m))
		log.WithField("errorcode", authErr.ErrorCode).
			Errorf("Authentication failed: %v", authErr.Message)
		if authErr.DebugInfo != "" {
			log.Debug(authErr.DebugInfo)
		}
		return authErr
	}

	var tokenResp wsdata.TokenResponse
	if err = wsdata.FromMap(m, &tokenResp); err != nil {
		log.WithError(err).Error("Unexpected response format")
		return wsdata.ErrParse{Op: op, Err: err}
	}
	if tokenResp.Token != "" {
		c.SetToken(tokenResp.Token)
		c.privateToken.Store(tokenResp.PrivateToken)
		log.Debug("Token obtained")
		return nil
	}

	log.Error("Unexpected response format")
	return wsdata.ErrParse{Op: op, Err: wsdata.ErrUnexpectedFormat}
}
