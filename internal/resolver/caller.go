// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ffutop/co2e-gateway/internal/httpcache"
)

// Response is the raw result of an outbound estimate call.
type Response struct {
	StatusCode int
	Body       []byte
	FromCache  bool
}

// Caller performs an outbound estimate call.
type Caller interface {
	Call(ctx context.Context, url string, body []byte) (*Response, error)
}

// HTTPCaller posts JSON bodies with a bearer credential. Caching is the
// concern of the client's transport.
type HTTPCaller struct {
	client *http.Client
	apiKey string
}

// NewHTTPCaller creates an HTTPCaller. A nil client uses http.DefaultClient.
func NewHTTPCaller(client *http.Client, apiKey string) *HTTPCaller {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCaller{client: client, apiKey: apiKey}
}

// Call implements Caller.
func (c *HTTPCaller) Call(ctx context.Context, url string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The colon after Bearer is part of the wire format.
	req.Header.Set("Authorization", "Bearer: "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		FromCache:  resp.Header.Get(httpcache.FromCacheHeader) == "1",
	}, nil
}
