package auth

import (
	"context"
	"strconv"
)

type contextKey struct{}

// Identity is the logged-in operator behind a request.
type Identity struct {
	SessionID    int64
	SessionToken string
	// AccessToken is the opened upstream bearer token.
	AccessToken string
	UserName    string
	Email       string
}

// Tag is the public identifier of the session used in change notices.
func (i Identity) Tag() string {
	return "s" + strconv.FormatInt(i.SessionID, 10)
}

func WithAuth(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func SessionToken(ctx context.Context) string {
	id, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return id.SessionToken
}

func UserName(ctx context.Context) string {
	id, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return id.UserName
}
