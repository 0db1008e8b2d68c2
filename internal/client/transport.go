package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	reqid "github.com/hanpama/normcache/internal/reqid"
)

const maxResponseBytes = 64 << 20

type transport struct {
	endpoint string
	http     *http.Client
	header   http.Header
}

type graphQLError struct {
	Message string `json:"message"`
}

type response struct {
	Data   map[string]any `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (t *transport) post(ctx context.Context, req Request) (*response, error) {
	body, err := t.postRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	var res response
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	return &res, nil
}

func (t *transport) postRaw(ctx context.Context, req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	hr.Header.Set("Content-Type", "application/json")
	hr.Header.Set("Accept", "application/json")
	for k, vs := range t.header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if id, ok := reqid.FromContext(ctx); ok {
		hr.Header.Set(reqid.Header, id)
	}

	resp, err := t.http.Do(hr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstream, resp.Status, bytes.TrimSpace(body))
	}
	return body, nil
}
