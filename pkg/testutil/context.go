package testutil

import (
	"context"
	"net/http"
	"time"

	"attest/pkg/requestcontext"
)

// WithActor injects an authenticated actor into the request context,
// simulating what the auth middleware does.
func WithActor(req *http.Request, actorID, actorRole string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actorID, actorRole)
	return req.WithContext(ctx)
}

// WithTenantGrants injects the actor's tenant grants into the request context.
func WithTenantGrants(req *http.Request, grants ...string) *http.Request {
	ctx := requestcontext.WithTenantGrants(req.Context(), grants)
	return req.WithContext(ctx)
}

// AuthedContext builds a context carrying a full authenticated identity, the
// state handlers see after the middleware chain ran.
func AuthedContext(actorID, actorRole string, grants ...string) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actorID, actorRole)
	ctx = requestcontext.WithTenantGrants(ctx, grants)
	ctx = requestcontext.WithRequestID(ctx, "test-request")
	return requestcontext.WithTime(ctx, time.Now().UTC())
}

// AuthedContextAt is AuthedContext with a pinned clock reading.
func AuthedContextAt(now time.Time, actorID, actorRole string, grants ...string) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actorID, actorRole)
	ctx = requestcontext.WithTenantGrants(ctx, grants)
	ctx = requestcontext.WithRequestID(ctx, "test-request")
	return requestcontext.WithTime(ctx, now)
}
