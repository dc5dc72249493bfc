package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rx3lixir/voicecards/internal/session"
	"github.com/rx3lixir/voicecards/pkg/jwt"
)

type ctxKey struct{}

// AuthMiddleware accepts a bearer access token whose session is still live
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.handleError(w, NewUnauthorizedError("Missing bearer token"))
			return
		}

		claims, err := s.jwtService.ValidateToken(token)
		if err != nil {
			s.log.Debug("Rejected token", "error", err)
			s.handleError(w, NewUnauthorizedError("Invalid or expired token"))
			return
		}

		if _, err := s.sessions.GetSession(r.Context(), claims.SessionID); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				s.handleError(w, NewUnauthorizedError("Session has ended"))
				return
			}
			s.handleError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(*jwt.Claims)
	return claims, ok
}
