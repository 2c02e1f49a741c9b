package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"manifestgate/pkg/requestcontext"
)

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

// Actor authenticates the caller and injects the actor identity into the
// request context. Identity comes from the JWT `sub` claim; the `role` claim
// set to "moderator" grants override/rebuild privileges. In dev mode an
// X-Actor header is accepted instead so local tooling does not need tokens.
func Actor(signingKey string, devMode bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if devMode {
				if actor := r.Header.Get("X-Actor"); actor != "" {
					ctx = requestcontext.WithActor(ctx, actor)
					ctx = requestcontext.WithModerator(ctx, r.Header.Get("X-Actor-Role") == "moderator")
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims := jwt.MapClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(signingKey), nil
			})
			if err != nil || !parsed.Valid {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			sub, _ := claims["sub"].(string)
			if sub == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Token missing subject")
				return
			}
			role, _ := claims["role"].(string)

			ctx = requestcontext.WithActor(ctx, sub)
			ctx = requestcontext.WithModerator(ctx, role == "moderator")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireModerator guards privileged routes. Must run after Actor.
func RequireModerator(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.IsModerator(ctx) {
				logger.WarnContext(ctx, "forbidden - moderator role required",
					"actor", requestcontext.Actor(ctx),
					"request_id", requestcontext.RequestID(ctx),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Moderator role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
