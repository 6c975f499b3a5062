package server

import (
	"errors"
	"strconv"
	"strings"
)

// Authenticator resolves a client token to a user id.
type Authenticator interface {
	Authenticate(token string) (int64, error)
}

var errBadToken = errors.New("invalid token")

// StaticAuthenticator maps pre-shared tokens to user ids. Suitable for
// closed deployments where the roster is known up front.
type StaticAuthenticator map[string]int64

func (a StaticAuthenticator) Authenticate(token string) (int64, error) {
	userID, ok := a[token]
	if !ok {
		return 0, errBadToken
	}
	return userID, nil
}

// DevAuthenticator accepts "user:<id>" tokens. Development only.
type DevAuthenticator struct{}

func (DevAuthenticator) Authenticate(token string) (int64, error) {
	raw, ok := strings.CutPrefix(token, "user:")
	if !ok {
		return 0, errBadToken
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errBadToken
	}
	return userID, nil
}
