package auth

import "errors"

var (
	// ErrUnauthorized means the request carried no valid session.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the session is valid but the user is not a member
	// of the project (or the project does not exist; the two are not
	// distinguished).
	ErrForbidden = errors.New("project not found or unauthorized")
)
