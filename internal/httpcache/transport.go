// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package httpcache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// FromCacheHeader is set to "1" on responses served from storage.
const FromCacheHeader = "X-From-Cache"

// Transport is an http.RoundTripper that answers repeated requests from Storage.
type Transport struct {
	Storage Storage
	Base    http.RoundTripper

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// NewTransport creates a Transport. A nil base uses http.DefaultTransport.
func NewTransport(storage Storage, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Storage: storage,
		Base:    base,
	}
}

// Stats reports cache hits and misses since creation.
func (t *Transport) Stats() (hits, misses int64) {
	return t.hits.Load(), t.misses.Load()
}

func cacheableMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPost:
		return true
	}
	return false
}

func cacheableStatus(code int) bool {
	switch code {
	case http.StatusOK, http.StatusNonAuthoritativeInfo, http.StatusNotModified:
		return true
	}
	return false
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !cacheableMethod(req.Method) {
		return t.Base.RoundTrip(req)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("httpcache: read request body: %w", err)
		}
	}

	ctx := req.Context()
	key := Key(req.Method, req.URL, body)

	entry, err := t.Storage.Get(ctx, key)
	if err == nil {
		t.hits.Add(1)
		slog.Debug("Cache hit", "method", req.Method, "url", req.URL.Redacted(), "key", key)
		return entry.response(req, true), nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		slog.Warn("Cache read failed, forwarding request", "key", key, "err", err)
	}

	v, err, shared := t.group.Do(key, func() (any, error) {
		// A flight for the same key may have finished since the lookup above.
		if e, err := t.Storage.Get(ctx, key); err == nil {
			return e, nil
		}

		out := req.Clone(ctx)
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}

		resp, err := t.Base.RoundTrip(out)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("httpcache: read response body: %w", err)
		}

		e := &Entry{
			StatusCode: resp.StatusCode,
			Header:     stripVolatile(resp.Header),
			Body:       data,
			CreatedAt:  time.Now().UTC(),
		}
		if cacheableStatus(resp.StatusCode) {
			if err := t.Storage.Set(ctx, key, e); err != nil {
				slog.Warn("Cache write failed", "key", key, "err", err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	if !shared {
		t.misses.Add(1)
	}
	slog.Debug("Cache miss", "method", req.Method, "url", req.URL.Redacted(), "key", key, "shared", shared)
	return v.(*Entry).response(req, false), nil
}
