// Package client holds HTTP clients for the services checkout talks to. All
// of them go through an httpclient.Doer, which supplies retries and the
// circuit breaker.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopflow/orderflow/pkg/httpclient"
	"github.com/shopflow/orderflow/pkg/logger"
)

type base struct {
	doer    httpclient.Doer
	baseURL string
	service string
}

func newBase(doer httpclient.Doer, baseURL, service string) base {
	return base{doer: doer, baseURL: strings.TrimRight(baseURL, "/"), service: service}
}

// envelope matches the {"data": ...} body written by pkg/httputil.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// call sends in as JSON and decodes a 2xx answer into out. Bodies wrapped in
// a data envelope are unwrapped. Non-2xx answers become typed errors. A key
// set with httpclient.WithIdempotencyKey is sent as the Idempotency-Key
// header, which also lets the doer replay a POST.
func (b base) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", b.service, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", b.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	if key := httpclient.IdempotencyKeyFromContext(ctx); key != "" {
		req.Header.Set(httpclient.IdempotencyKeyHeader, key)
	}

	resp, err := b.doer.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("call %s service: %w", b.service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, b.service)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", b.service, err)
	}
	var env envelope
	if json.Unmarshal(raw, &env) == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", b.service, err)
	}
	return nil
}
