package client

import (
	"context"

	typemap "github.com/hanpama/normcache/internal/typemap"
)

// LoadTypeMap builds a type map from the introspection result of endpoint.
func LoadTypeMap(ctx context.Context, endpoint string, opts ...Option) (*typemap.Map, error) {
	o := buildOptions(opts)
	t := &transport{endpoint: endpoint, http: o.HTTPClient, header: o.Header}
	body, err := t.postRaw(ctx, Request{Query: typemap.IntrospectionQuery})
	if err != nil {
		return nil, err
	}
	return typemap.FromIntrospection(body)
}
