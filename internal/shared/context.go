package shared

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// ActorHeader carries the id of the user acting on the ledger.
const ActorHeader = "X-Actor-ID"

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user id, or 0 for system callers.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}

// ActorFromRequest parses ActorHeader. Missing or malformed values yield 0.
func ActorFromRequest(r *http.Request) int64 {
	raw := strings.TrimSpace(r.Header.Get(ActorHeader))
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
