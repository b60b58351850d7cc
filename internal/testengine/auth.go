package testengine

import (
	"fmt"
	"net/http"
	"strings"
)

// Auth decorates outgoing requests with credentials.
type Auth interface {
	Apply(req *http.Request)
}

// NoAuth sends requests without credentials.
type NoAuth struct{}

// Apply implements Auth.
func (NoAuth) Apply(*http.Request) {}

// BasicAuth sends HTTP Basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Apply implements Auth.
func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.Username, a.Password)
}

// BearerAuth sends an Authorization: Bearer token.
type BearerAuth struct {
	Token string
}

// Apply implements Auth.
func (a BearerAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Token)
}

// Auth scheme names accepted by [NewAuth].
const (
	SchemeBasic  = "basic"
	SchemeBearer = "bearer"
	SchemeNone   = "none"
)

// NewAuth builds an Auth for the named scheme. An empty scheme picks basic
// when both username and password are set, and none otherwise. The bearer
// scheme uses password as the token.
func NewAuth(scheme, username, password string) (Auth, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "":
		if username != "" && password != "" {
			return BasicAuth{Username: username, Password: password}, nil
		}
		return NoAuth{}, nil
	case SchemeBasic:
		if username == "" || password == "" {
			return nil, fmt.Errorf("basic auth requires username and password")
		}
		return BasicAuth{Username: username, Password: password}, nil
	case SchemeBearer:
		if password == "" {
			return nil, fmt.Errorf("bearer auth requires a token")
		}
		return BearerAuth{Token: password}, nil
	case SchemeNone:
		return NoAuth{}, nil
	default:
		return nil, fmt.Errorf("unknown auth scheme %q (expected basic, bearer, or none)", scheme)
	}
}
