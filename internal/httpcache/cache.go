// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package httpcache provides a caching http.RoundTripper whose entries never
// expire. Entries are keyed by method, URL and body after removing volatile
// parameters, so identical calls cross the network once.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ffutop/co2e-gateway/internal/config"
)

// ErrCacheMiss is returned by Storage.Get when no entry exists for a key.
var ErrCacheMiss = errors.New("httpcache: cache miss")

// volatileNames are stripped from response headers, query parameters and
// top-level JSON body keys before keying or storing.
var volatileNames = []string{"cache-control", "expires", "set-cookie", "etag", "last-modified"}

func isVolatile(name string) bool {
	for _, v := range volatileNames {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}

// Entry is a stored response.
type Entry struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (e *Entry) response(req *http.Request, fromCache bool) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if fromCache {
		header.Set(FromCacheHeader, "1")
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Storage holds cache entries. Implementations must be safe for concurrent use.
type Storage interface {
	// Get returns the entry for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)
	// Set stores the entry for key without expiry.
	Set(ctx context.Context, key string, e *Entry) error
	// Purge removes every entry.
	Purge(ctx context.Context) error
	Close() error
}

// Open creates the storage selected by cfg.
func Open(cfg config.CacheConfig) (Storage, error) {
	switch cfg.Type {
	case "memory", "":
		slog.Debug("Opening response cache", "type", "memory")
		return NewMemoryStorage(), nil
	case "sqlite":
		slog.Debug("Opening response cache", "type", "sqlite", "path", cfg.Path)
		return NewSQLiteStorage(cfg.Path)
	case "redis":
		slog.Debug("Opening response cache", "type", "redis", "addr", cfg.Redis.Address)
		return NewRedisStorage(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}

// Key returns the cache key for a request with the given body.
func Key(method string, u *url.URL, body []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(normalizeURL(u)))
	h.Write([]byte{'\n'})
	h.Write(normalizeBody(body))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	q := c.Query()
	for name := range q {
		if isVolatile(name) {
			q.Del(name)
		}
	}
	c.RawQuery = q.Encode()
	return c.String()
}

// normalizeBody re-encodes JSON objects with sorted keys and volatile keys
// removed. Anything else is used verbatim.
func normalizeBody(body []byte) []byte {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || dec.More() {
		return body
	}
	for name := range obj {
		if isVolatile(name) {
			delete(obj, name)
		}
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return body
	}
	return out
}

func stripVolatile(h http.Header) http.Header {
	out := h.Clone()
	for name := range out {
		if isVolatile(name) {
			out.Del(name)
		}
	}
	return out
}

func encodeEntry(e *Entry) ([]byte, error) {
	return json.Marshal(e)
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("httpcache: corrupt entry: %w", err)
	}
	return &e, nil
}
