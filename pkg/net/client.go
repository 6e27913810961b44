// Package net holds the HTTP clients used to talk to a running scoring
// service and to fetch model artifacts.
package net

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	clientAgent      = "dropscore"
)

var (
	reqTransport = &http.Transport{
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableCompression:    true,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}
)

// GetHTTPClient returns a client with the shared transport and timeout.
func GetHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = timeoutInSeconds * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: reqTransport,
	}
}

// GetOAuthClient returns a client that sends token as a bearer credential.
// An empty token yields a plain client.
func GetOAuthClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	base := GetHTTPClient(timeout)
	if token == "" {
		return base
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{
			TokenType:   "Bearer",
			AccessToken: token,
		},
	)

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = base.Timeout

	return tc
}

func newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", clientAgent)
	return req, nil
}
