package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// cachedResponse stores the response fields worth replaying in a simple
// JSON file format.
type cachedResponse struct {
	Status     string              `json:"status"`
	StatusCode int                 `json:"status_code"`
	Proto      string              `json:"proto"`
	Header     map[string][]string `json:"header"`
	Body       []byte              `json:"body"`
}

// CachingRoundTripper implements http.RoundTripper with a disk-backed
// replay cache keyed on method, URL, and request body. Useful when
// iterating against the portals without hammering their login endpoints;
// note that replayed responses also replay stale session cookies.
type CachingRoundTripper struct {
	// UnderlyingTransport handles cache misses.
	// If nil, http.DefaultTransport is used.
	UnderlyingTransport http.RoundTripper

	// CacheDir is the directory where response files are stored.
	CacheDir string
}

func (c *CachingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := c.UnderlyingTransport
	if transport == nil {
		transport = http.DefaultTransport
	}

	// The body is consumed for hashing, so hand the transport a fresh
	// reader over the same bytes.
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	cachePath := filepath.Join(c.CacheDir, cacheKey(req.Method, req.URL.String(), reqBody)+".json")

	if data, err := os.ReadFile(cachePath); err == nil {
		var cached cachedResponse
		if err := json.Unmarshal(data, &cached); err != nil {
			return nil, fmt.Errorf("reading cached response %s: %w", cachePath, err)
		}
		return cached.toHTTPResponse(req), nil
	}

	resp, err := transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	cached := cachedResponse{
		Status:     resp.Status,
		StatusCode: resp.StatusCode,
		Proto:      resp.Proto,
		Header:     resp.Header.Clone(),
		Body:       respBody,
	}
	data, err := json.MarshalIndent(&cached, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(cachePath, data, 0644); err != nil {
		return nil, fmt.Errorf("writing cached response %s: %w", cachePath, err)
	}

	// The original body has been drained, so return a rebuilt response.
	return cached.toHTTPResponse(req), nil
}

// cacheKey builds a SHA-256 hash string from method, url, and request body.
// Headers are deliberately left out of the key.
func cacheKey(method, url string, body []byte) string {
	hash := sha256.New()
	hash.Write([]byte(method))
	hash.Write([]byte(url))
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

func (cr *cachedResponse) toHTTPResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        cr.Status,
		StatusCode:    cr.StatusCode,
		Proto:         cr.Proto,
		Header:        cr.Header,
		Body:          io.NopCloser(bytes.NewReader(cr.Body)),
		ContentLength: int64(len(cr.Body)),
		Request:       req,
	}
}
