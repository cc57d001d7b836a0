package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Claims identify an operator. Subject (sub) carries the operator id; Role is
// checked by internal/rbac.
type Claims struct {
	jwt.RegisteredClaims

	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
