package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"fieldline/internal/gateway"
	"fieldline/internal/session"
)

type principalKey struct{}

func withPrincipal(ctx context.Context, p session.Identity) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (session.Identity, huma.StatusError) {
	if p, ok := ctx.Value(principalKey{}).(session.Identity); ok && p.UserID != "" {
		return p, nil
	}
	return session.Identity{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required")
}

// IssueToken signs a session token for id, the way the external auth
// service would.
func IssueToken(secret string, id session.Identity, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := session.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		AgentID: id.AgentID,
		Role:    id.Role,
		Name:    id.Name,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticate(token, secret string, now time.Time) (session.Identity, error) {
	if strings.TrimSpace(secret) == "" {
		return session.Identity{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	claims := &session.Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return session.Identity{}, err
	}
	if !parsed.Valid {
		return session.Identity{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return session.Identity{}, errors.New("subject claim required")
	}
	role := claims.Role
	if role == "" {
		role = session.RoleAgent
	}
	return session.Identity{UserID: claims.Subject, AgentID: claims.AgentID, Role: role, Name: claims.Name, Token: token}, nil
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, "/api/") {
			next.ServeHTTP(w, req)
			return
		}
		c, err := req.Cookie(gateway.CookieName)
		if err != nil || strings.TrimSpace(c.Value) == "" {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required"))
			return
		}
		p, err := authenticate(c.Value, s.secret, s.clock.Now())
		if err != nil {
			s.logger.Debug("rejected session cookie", "err", err)
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials"))
			return
		}
		next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), p)))
	})
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
