package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/gobd-ledger/api/responses"
	"github.com/angelmondragon/gobd-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
)

// RequireRole admits requests whose actor holds one of roles. It must run
// after Auth; a request without an actor is answered with 401.
func RequireRole(logg *logger.Logger, roles ...enums.ActorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			switch {
			case !actor.Valid():
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			case !slices.Contains(roles, actor.Role):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role "+actor.Role.String()+" may not call this endpoint"))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
