package audit

import "context"

type actorCtxKey struct{}
type requestMetaCtxKey struct{}

// RequestMeta is the request-scoped metadata stamped onto audit records.
type RequestMeta struct {
	IPAddress *string
	UserAgent *string
}

// WithActor attaches the acting admin's id to the context.
func WithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorCtxKey{}, actorID)
}

// ActorFrom returns the acting admin's id, or nil for system-initiated
// mutations.
func ActorFrom(ctx context.Context) *string {
	if actorID, ok := ctx.Value(actorCtxKey{}).(string); ok {
		return &actorID
	}
	return nil
}

// WithRequestMeta attaches request metadata to the context.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaCtxKey{}, meta)
}

// RequestMetaFrom returns the request metadata, zero when absent.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaCtxKey{}).(RequestMeta)
	return meta
}
