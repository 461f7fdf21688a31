package globals

import (
	"os"
)

var JwtSecret = []byte(envOr("JWT_SECRET", "change_this_secret"))

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Context keys
type ContextKey string

const RoleKey ContextKey = "role"
const UserIDKey ContextKey = "userId"
