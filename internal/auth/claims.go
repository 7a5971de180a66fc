package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this gateway.
// The token binds exactly one user; device/session identity is minted
// server-side after the handshake, never taken from the token.
type Claims struct {
	jwt.RegisteredClaims

	UserID string `json:"user_id"`
}
