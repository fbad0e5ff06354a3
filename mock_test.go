// mock_test.go
package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/cookiejar"

	"github.com/sirupsen/logrus"
)

// MockRoundTripper is a mock implementation of http.RoundTripper.
type MockRoundTripper struct {
	Handler func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Handler(req)
}

// jsonResponse builds a canned response carrying the given body.
func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

// newTestClient returns a cookie-jarred client backed by the handler,
// mirroring the client NewApp builds.
func newTestClient(handler func(req *http.Request) (*http.Response, error)) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Transport: &MockRoundTripper{Handler: handler},
		Jar:       jar,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
