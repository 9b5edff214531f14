// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package wsclient provides a client for the Moodle web service REST
// API.  It obtains a token from the login endpoint, then calls named
// web service functions with that token, and can download and upload
// files through the web service file endpoints.
//
// A typical session looks like
//
//     c, err := wsclient.New(wsclient.Config{URL: "https://lms.example.com/moodle"})
//     if err == nil {
//         err = c.Authenticate(ctx, wsclient.Credentials{Username: "alice", Password: "secret"})
//     }
//     if err == nil {
//         info, err = c.Call(ctx, "core_webservice_get_site_info", nil, nil)
//     }
//
// A Client is safe for concurrent use once it has a token.  The token
// may be replaced by calling Authenticate or SetToken again, but calls
// already in flight at that moment may use either the old or the new
// token; re-authenticating concurrently with calls is not supported.
//
// No operation is ever retried.  Cancellation and timeouts come from
// the context passed to each operation and from Config.HTTPClient.
package wsclient

import (
	"crypto/tls"
	"github.com/benbjohnson/clock"
	"github.com/diffeo/go-moodle/wsdata"
	"github.com/sirupsen/logrus"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
)

// Config holds the parameters for creating a Client.
type Config struct {
	// URL is the root of the Moodle site, including any path
	// prefix, e.g. "https://lms.example.com/moodle".  If empty,
	// New still succeeds but every network operation fails with
	// wsdata.ErrNoURL.
	URL string

	// Service names the web service profile to request a token
	// for.  Defaults to wsdata.DefaultService.
	Service string

	// Token is a previously obtained web service token.  If set,
	// the client is ready for calls without authenticating.
	Token string

	// InsecureSkipVerify disables TLS certificate verification for
	// every request this client makes.  Individual calls can also
	// request this for themselves.
	InsecureSkipVerify bool

	// HTTPClient performs the actual requests.  If nil, a client
	// with a private copy of http.DefaultTransport is used.
	HTTPClient *http.Client

	// Logger receives diagnostic messages.  Defaults to the logrus
	// standard logger.
	Logger logrus.FieldLogger

	// Clock is used to time requests for Metrics.  Defaults to
	// the system clock.
	Clock clock.Clock

	// Metrics, if non-nil, is updated for every operation.
	Metrics *Metrics
}

// Client is a session with a single Moodle site.
type Client struct {
	origin  *url.URL
	service string

	token        atomic.Value // string
	privateToken atomic.Value // string

	httpClient     *http.Client
	insecureOnce   sync.Once
	insecureClient *http.Client

	log     logrus.FieldLogger
	clock   clock.Clock
	metrics *Metrics
}

// New creates a new client.  It does not contact the server.  It
// returns an error if config.URL is set but is not an absolute http or
// https URL.
func New(config Config) (*Client, error) {
	c := &Client{
		service:    config.Service,
		httpClient: config.HTTPClient,
		log:        config.Logger,
		clock:      config.Clock,
		metrics:    config.Metrics,
	}
	if c.service == "" {
		c.service = wsdata.DefaultService
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		}
	}

	if config.URL != "" {
		origin, err := parseOrigin(config.URL)
		if err != nil {
			return nil, err
		}
		c.origin = origin
		if origin.Scheme == "http" {
			c.log.WithField("url", origin.String()).
				Warn("Moodle client using http: credentials and tokens are transmitted unencrypted")
		}
	}

	if config.InsecureSkipVerify {
		c.httpClient = c.client(true)
	}

	if config.Token != "" {
		c.SetToken(config.Token)
	}
	return c, nil
}

func parseOrigin(raw string) (*url.URL, error) {
	origin, err := url.Parse(raw)
	if err != nil {
		return nil, wsdata.ErrConfiguration{Reason: "Invalid Moodle site URL: " + err.Error()}
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, wsdata.ErrConfiguration{Reason: "Moodle site URL must be http or https: " + raw}
	}
	if origin.Host == "" {
		return nil, wsdata.ErrConfiguration{Reason: "Moodle site URL has no host: " + raw}
	}
	origin.Path = strings.TrimRight(origin.Path, "/")
	origin.RawPath = ""
	origin.RawQuery = ""
	origin.Fragment = ""
	return origin, nil
}

// URL returns the site root URL, or nil if none was configured.  The
// returned URL is a copy.
func (c *Client) URL() *url.URL {
	if c.origin == nil {
		return nil
	}
	u := *c.origin
	return &u
}

// Service returns the name of the web service profile.
func (c *Client) Service() string {
	return c.service
}

// Token returns the current web service token, and whether there is
// one at all.
func (c *Client) Token() (string, bool) {
	token, _ := c.token.Load().(string)
	return token, token != ""
}

// PrivateToken returns the private token the login endpoint issued
// alongside the last token, if any.
func (c *Client) PrivateToken() string {
	token, _ := c.privateToken.Load().(string)
	return token
}

// SetToken replaces the web service token.  Setting the empty string
// clears it.
func (c *Client) SetToken(token string) {
	c.token.Store(token)
	c.privateToken.Store("")
}

// client returns the HTTP client to use for a request.  If insecure
// is set, this is a copy of the normal client whose transport skips
// TLS certificate verification.
func (c *Client) client(insecure bool) *http.Client {
	if !insecure {
		return c.httpClient
	}
	c.insecureOnce.Do(func() {
		c.insecureClient = c.makeInsecure(c.httpClient)
	})
	return c.insecureClient
}

func (c *Client) makeInsecure(base *http.Client) *http.Client {
	var transport *http.Transport
	switch t := base.Transport.(type) {
	case nil:
		transport = http.DefaultTransport.(*http.Transport).Clone()
	case *http.Transport:
		transport = t.Clone()
	default:
		c.log.WithField("transport", t).
			Warn("Cannot disable TLS verification on a custom transport")
		return base
	}
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	}
	transport.TLSClientConfig.InsecureSkipVerify = true
	client := *base
	client.Transport = transport
	return &client
}
