package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the identity fields issued by the auth provider.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// KeySource resolves RS256 verification keys by key id.
type KeySource interface {
	Get(ctx context.Context, keyID string) (any, error)
}

// Verifier checks bearer tokens signed either with a shared HS256 secret or with
// RS256 keys published on a JWKS endpoint. Either source may be absent.
type Verifier struct {
	secret []byte
	keys   KeySource
}

func NewVerifier(secret string, keys KeySource) *Verifier {
	v := &Verifier{keys: keys}
	if s := strings.TrimSpace(secret); s != "" {
		v.secret = []byte(s)
	}
	return v
}

func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(v.secret) == 0 {
				return nil, ErrInvalidToken
			}
			return v.secret, nil
		case *jwt.SigningMethodRSA:
			if v.keys == nil {
				return nil, ErrInvalidToken
			}
			kid, _ := t.Header["kid"].(string)
			return v.keys.Get(ctx, kid)
		default:
			return nil, ErrInvalidToken
		}
	}, jwt.WithValidMethods([]string{"HS256", "RS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignHS256 issues a token with the shared secret; used by local tooling and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
