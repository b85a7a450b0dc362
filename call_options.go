package rustyshim

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// AuthorizationHeader is the call header carrying the session token.
const AuthorizationHeader = "authorization"

// CallOptions bundles the headers attached to every call issued after the
// handshake. It is derived once from the session token and never changes.
type CallOptions struct {
	header metadata.MD
}

func newCallOptions(token []byte) *CallOptions {
	return &CallOptions{
		header: metadata.Pairs(AuthorizationHeader, string(token)),
	}
}

// Header returns a copy of the headers sent with every call. It is empty for
// a connection that never authenticated.
func (o *CallOptions) Header() metadata.MD {
	if o == nil {
		return metadata.MD{}
	}
	return o.header.Copy()
}

// Token returns the session token carried in the authorization header.
func (o *CallOptions) Token() string {
	if o == nil {
		return ""
	}
	if vals := o.header.Get(AuthorizationHeader); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// apply returns a context whose outgoing metadata carries the call headers,
// replacing any authorization header already present on ctx.
func (o *CallOptions) apply(ctx context.Context) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return metadata.NewOutgoingContext(ctx, o.header.Copy())
	}
	md = md.Copy()
	for k, v := range o.header {
		md[k] = append([]string(nil), v...)
	}
	return metadata.NewOutgoingContext(ctx, md)
}
