package middleware

import (
	"context"

	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	"github.com/angelmondragon/gobd-ledger/pkg/types"
)

type contextKey string

const (
	ctxActorName contextKey = "actor_name"
	ctxRole      contextKey = "actor_role"
)

// ActorFromContext returns the authenticated actor. The zero Actor is
// returned for anonymous requests and is rejected by every ledger operation.
func ActorFromContext(ctx context.Context) types.Actor {
	if ctx == nil {
		return types.Actor{}
	}
	name, _ := ctx.Value(ctxActorName).(string)
	role, _ := ctx.Value(ctxRole).(enums.ActorRole)
	return types.Actor{Name: name, Role: role}
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

// WithActor injects the actor into the context for downstream handlers.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorName, actor.Label())
	return context.WithValue(ctx, ctxRole, actor.Role)
}
