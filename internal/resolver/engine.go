// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ffutop/co2e-gateway/internal/store/model"
)

// Store is the read side of the configuration store.
type Store interface {
	HasDefault(id string) (bool, error)
	GetDefault(id string) (float64, error)
	HasTemplate(id string) (bool, error)
	GetTemplate(id string) (model.RequestTemplate, error)
}

// Options are fixed for the lifetime of an Engine.
type Options struct {
	// Offline resolves every id without a default to 0, without calling out.
	Offline bool
	// ExpectedUnit, when set, must equal the co2e_unit of every live result.
	ExpectedUnit string
}

// Engine resolves (request id, quantity) pairs to CO2e values.
//
// Tiers are tried in order and the first that applies wins:
//  1. a default multiplier stored under the id
//  2. offline mode, which yields 0
//  3. a request template, whose per-unit factor is fetched through the Caller
//
// Anything else is a NotFoundError.
type Engine struct {
	store  Store
	caller Caller
	opts   Options
}

// New creates an Engine.
func New(store Store, caller Caller, opts Options) *Engine {
	return &Engine{
		store:  store,
		caller: caller,
		opts:   opts,
	}
}

// Resolve returns the CO2e value for quantity units of id.
func (e *Engine) Resolve(ctx context.Context, id string, quantity float64) (float64, error) {
	slog.Debug("Resolve", "id", id, "quantity", quantity)

	ok, err := e.store.HasDefault(id)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", id, err)
	}
	if ok {
		factor, err := e.store.GetDefault(id)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", id, err)
		}
		slog.Debug("Resolved by default entry", "id", id, "factor", factor)
		return factor * quantity, nil
	}

	if e.opts.Offline {
		slog.Debug("Resolved offline", "id", id)
		return 0, nil
	}

	ok, err = e.store.HasTemplate(id)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", id, err)
	}
	if ok {
		t, err := e.store.GetTemplate(id)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", id, err)
		}
		factor, err := e.unitFactor(ctx, t)
		if err != nil {
			return 0, err
		}
		return factor * quantity, nil
	}

	return 0, NotFoundError{ID: id}
}

// callBody builds the estimate request for one unit of the template's quantity.
func callBody(t model.RequestTemplate) ([]byte, error) {
	params := make(map[string]any, len(t.Parameters)+1)
	for k, v := range t.Parameters {
		params[k] = v
	}
	params[t.QuantityField] = 1

	selector := t.FactorSelector
	if selector == nil {
		selector = map[string]string{}
	}
	return json.Marshal(map[string]any{
		"emission_factor": selector,
		"parameters":      params,
	})
}

// unitFactor performs the live call and extracts the per-unit co2e.
func (e *Engine) unitFactor(ctx context.Context, t model.RequestTemplate) (float64, error) {
	body, err := callBody(t)
	if err != nil {
		return 0, &UpstreamError{ID: t.ID, Message: "encode request", Err: err}
	}
	if e.caller == nil {
		return 0, &UpstreamError{ID: t.ID, Message: "no outbound caller configured"}
	}

	resp, err := e.caller.Call(ctx, t.Endpoint, body)
	if err != nil {
		return 0, &UpstreamError{ID: t.ID, Err: err}
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return 0, &UpstreamError{ID: t.ID, StatusCode: resp.StatusCode, Message: "undecodable response", Err: err}
	}

	if raw, ok := payload["error"]; ok {
		msg := stringField(payload, "message")
		if msg == "" {
			msg = strings.Trim(string(raw), `"`)
		}
		slog.Error("Estimate API returned an error", "id", t.ID, "status", resp.StatusCode, "message", msg)
		return 0, &UpstreamError{ID: t.ID, StatusCode: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := stringField(payload, "message")
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return 0, &UpstreamError{ID: t.ID, StatusCode: resp.StatusCode, Message: msg}
	}

	var co2e float64
	raw, ok := payload["co2e"]
	if !ok {
		return 0, &UpstreamError{ID: t.ID, StatusCode: resp.StatusCode, Message: "response has no co2e"}
	}
	if err := json.Unmarshal(raw, &co2e); err != nil {
		return 0, &UpstreamError{ID: t.ID, StatusCode: resp.StatusCode, Message: "co2e is not a number", Err: err}
	}

	unit := stringField(payload, "co2e_unit")
	if e.opts.ExpectedUnit != "" && unit != e.opts.ExpectedUnit {
		return 0, &UpstreamError{
			ID:         t.ID,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("co2e unit %q, expected %q", unit, e.opts.ExpectedUnit),
		}
	}

	slog.Info("Estimate", "id", t.ID, "co2e", co2e, "unit", unit, "cached", resp.FromCache)
	return co2e, nil
}

func stringField(payload map[string]json.RawMessage, name string) string {
	raw, ok := payload[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
