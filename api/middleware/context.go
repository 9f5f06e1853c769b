package middleware

import (
	"context"

	"github.com/angelmondragon/trustlend-backend/pkg/enums"
)

// Principal is the authenticated caller as read from the access token.
type Principal struct {
	UserID   string
	Role     enums.UserRole
	Verified bool
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom reports false on unauthenticated requests.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFrom(ctx)
	return p.UserID
}

func RoleFromContext(ctx context.Context) string {
	p, _ := PrincipalFrom(ctx)
	return string(p.Role)
}

func VerifiedFromContext(ctx context.Context) bool {
	p, _ := PrincipalFrom(ctx)
	return p.Verified
}

// WithUserID sets the caller id, keeping any role already on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	p, _ := PrincipalFrom(ctx)
	p.UserID = userID
	return WithPrincipal(ctx, p)
}

// WithRole sets the caller role, keeping any id already on ctx.
func WithRole(ctx context.Context, role string) context.Context {
	p, _ := PrincipalFrom(ctx)
	p.Role = enums.UserRole(role)
	return WithPrincipal(ctx, p)
}
