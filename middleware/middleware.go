package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"merza/globals"
	"merza/rdx"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
)

// JWT claims
type Claims struct {
	Email  string   `json:"email"`
	UserID string   `json:"userId"`
	Role   []string `json:"role"`
	jwt.RegisteredClaims
}

// Auth carries the cache used to honor logout (token blacklist).
type Auth struct {
	Cache *rdx.Cache
}

func NewAuth(cache *rdx.Cache) *Auth {
	return &Auth{Cache: cache}
}

// BlacklistKey is the Redis key a revoked token is parked under until expiry.
func BlacklistKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "blacklist:" + hex.EncodeToString(sum[:])
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func (a *Auth) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			return globals.JwtSecret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		if a.Cache != nil && a.Cache.Exists(r.Context(), BlacklistKey(tokenString)) {
			http.Error(w, "Token revoked", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), globals.UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, globals.RoleKey, claims.Role)
		next(w, r.WithContext(ctx), ps)
	}
}

// RequireAdmin gates catalog mutations; must run inside Authenticate.
func (a *Auth) RequireAdmin(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roles, _ := r.Context().Value(globals.RoleKey).([]string)
		for _, role := range roles {
			if role == "admin" {
				next(w, r, ps)
				return
			}
		}
		http.Error(w, "Admin access required", http.StatusForbidden)
	}
}
