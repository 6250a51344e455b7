package identity

import (
	"errors"
	"net/http"
	"strings"

	"proconnect/internal/access"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims issued by the auth service alongside the session.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Resolver turns a transport credential into an identity.
type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Resolve returns nil, nil for an anonymous request (no credential at all).
// A credential that is present but invalid is an error.
func (r *Resolver) Resolve(req *http.Request) (*access.Identity, error) {
	token := req.URL.Query().Get("token")
	if token == "" {
		token = req.Header.Get("Authorization")
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, nil
	}
	return r.Parse(token)
}

func (r *Resolver) Parse(token string) (*access.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &access.Identity{UserID: claims.Subject, Name: claims.Name}, nil
}
