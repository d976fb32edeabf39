package engine

import "context"

// runScope is the per-trail state that travels with a run's context, so
// overlapping runs on one Runner never share it.
type runScope struct {
	sessionID    string
	trailContext string
}

type runScopeKey struct{}

// WithSessionID returns a context tagging everything run under it with id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runScopeKey{}, &runScope{sessionID: id})
}

// SessionIDFrom returns the session id set by WithSessionID.
func SessionIDFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(runScopeKey{}).(*runScope)
	if !ok || s.sessionID == "" {
		return "", false
	}
	return s.sessionID, true
}

func scopeFrom(ctx context.Context) *runScope {
	s, _ := ctx.Value(runScopeKey{}).(*runScope)
	return s
}

// trailContextFrom returns the app description of the run's config item.
func trailContextFrom(ctx context.Context) string {
	if s := scopeFrom(ctx); s != nil {
		return s.trailContext
	}
	return ""
}
