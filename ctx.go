package fintrack

import (
	"context"

	"github.com/goliatone/go-router"
)

var profileCtxKey = &contextKey{"profile"}

type contextKey struct {
	name string
}

// WithContext sets the Profile in the given context
func WithContext(r context.Context, profile *Profile) context.Context {
	return context.WithValue(r, profileCtxKey, profile)
}

// FromContext finds the profile from the context.
func FromContext(ctx context.Context) (*Profile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*Profile)
	return raw, ok
}

// GetRouterProfile extracts the Profile the guard stored in router locals
func GetRouterProfile(ctx router.Context, key string) (*Profile, bool) {
	if key == "" {
		key = "current_user"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	profile, ok := raw.(*Profile)
	return profile, ok
}
