package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"kanban-realtime/pkg/jwt"
)

// Sessions resolves the acting user from a request's session token. Tokens
// are issued by the board application; this service only validates them.
type Sessions struct {
	validator  *jwt.Validator
	cookieName string
}

// NewSessions creates a session resolver.
func NewSessions(validator *jwt.Validator, cookieName string) *Sessions {
	return &Sessions{
		validator:  validator,
		cookieName: cookieName,
	}
}

// UserID extracts and validates the session token from the Authorization
// header or the session cookie, returning the acting user's ID.
func (s *Sessions) UserID(c *gin.Context) (string, error) {
	token := ""
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	} else if cookie, err := c.Cookie(s.cookieName); err == nil {
		token = cookie
	}

	if token == "" {
		return "", ErrUnauthorized
	}

	userID, err := s.validator.ExtractUserID(token)
	if err != nil {
		return "", ErrUnauthorized
	}
	return userID, nil
}
