package usercontext

import (
	"context"

	authdomain "github.com/classfund/classfund/internal/auth/domain"
	"github.com/bwmarrin/snowflake"
)

// UserContextKey is the request context key for the authenticated user.
type UserContextKey struct{}

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, user *authdomain.User) context.Context {
	return context.WithValue(ctx, UserContextKey{}, user)
}

// UserFromContext returns the authenticated user from context, if set.
func UserFromContext(ctx context.Context) (*authdomain.User, bool) {
	if ctx == nil {
		return nil, false
	}
	user, ok := ctx.Value(UserContextKey{}).(*authdomain.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// UserIDFromContext returns the authenticated user ID from context, if set.
func UserIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return 0, false
	}
	return user.ID, true
}
