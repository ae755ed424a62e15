// Package auditctx carries request metadata from the HTTP layer into audit records.
package auditctx

import "context"

// Request describes the client behind a mutation.
type Request struct {
	UserID    string
	IPAddress string
	UserAgent string
}

type requestContextKey struct{}

// WithRequest returns a derived context carrying the request metadata.
func WithRequest(ctx context.Context, req Request) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestContextKey{}, req)
}

// FromContext extracts metadata stored by WithRequest.
func FromContext(ctx context.Context) (Request, bool) {
	if ctx == nil {
		return Request{}, false
	}
	req, ok := ctx.Value(requestContextKey{}).(Request)
	return req, ok
}
