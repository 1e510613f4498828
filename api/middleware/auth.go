package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/gobd-ledger/api/responses"
	pkgAuth "github.com/angelmondragon/gobd-ledger/pkg/auth"
	"github.com/angelmondragon/gobd-ledger/pkg/config"
	pkgerrors "github.com/angelmondragon/gobd-ledger/pkg/errors"
	"github.com/angelmondragon/gobd-ledger/pkg/logger"
)

const bearerScheme = "bearer"

// Auth validates a bearer token and seeds the request context with the actor
// it speaks for. Tokens whose actor could not be written to an audit row are
// refused here rather than deep inside a ledger transaction.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			actor := claims.Actor()
			if !actor.Valid() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token carries no usable actor"))
				return
			}

			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor.Label())
				ctx = logg.WithActorRole(ctx, actor.Role.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
