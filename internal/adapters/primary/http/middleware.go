package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/ports"
)

// Clé privée pour le contexte (évite les collisions)
type contextKey struct{ name string }

var actorCtxKey = &contextKey{"actor_id"}

// AuthMiddleware décode le header Authorization et valide le token via le
// Session Gate. Pas de header = 401 direct : tout ce qui est derrière ce
// middleware exige une session.
func AuthMiddleware(gate ports.SessionGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")

			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				http.Error(w, "missing or invalid authorization header", http.StatusUnauthorized)
				return
			}

			identityID, err := gate.Verify(r.Context(), tokenStr)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), actorCtxKey, identityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorID récupère l'identité authentifiée depuis le contexte.
func ActorID(ctx context.Context) string {
	raw, _ := ctx.Value(actorCtxKey).(string)
	return raw
}
