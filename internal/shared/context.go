package shared

import (
	"context"
	"errors"
	"net/http"
	"strconv"
)

// ActorHeader carries the numeric ID of the user performing the request.
const ActorHeader = "X-Actor-ID"

// ErrInvalidActor is returned when the actor header is not a positive integer.
var ErrInvalidActor = errors.New("invalid actor id")

type actorContextKey struct{}

// ContextWithActor stores the acting user ID in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting user ID, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}

// ActorMiddleware copies the actor header into the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ActorHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, ErrInvalidActor.Error(), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), id)))
	})
}
