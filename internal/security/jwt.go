// Package security verifies the access tokens issued by the marketplace auth service.
package security

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken    = fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	ErrInvalidIssuer   = fmt.Errorf("%w: invalid issuer", domain.ErrUnauthenticated)
	ErrInvalidAudience = fmt.Errorf("%w: invalid audience", domain.ErrUnauthenticated)
	ErrTokenExpired    = fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
	ErrInvalidSubject  = fmt.Errorf("%w: invalid subject", domain.ErrUnauthenticated)
)

type AccessClaims struct {
	jwt.StandardClaims
	Name string `json:"name,omitempty"`
}

// Keys holds either an RSA key pair (RS256) or a shared secret (HS256).
// Private is only needed to sign.
type Keys struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
	Secret  []byte
}

func (k Keys) method() jwt.SigningMethod {
	if k.Public != nil || k.Private != nil {
		return jwt.SigningMethodRS256
	}
	return jwt.SigningMethodHS256
}

type Verifier struct {
	keys      Keys
	issuer    string
	audience  string
	clockSkew time.Duration
	now       func() time.Time
}

func NewVerifier(keys Keys, issuer, audience string, clockSkew time.Duration) (*Verifier, error) {
	if keys.Public == nil && len(keys.Secret) == 0 {
		return nil, errors.New("security: no verification key configured")
	}
	return &Verifier{keys: keys, issuer: issuer, audience: audience, clockSkew: clockSkew, now: time.Now}, nil
}

// Verify parses the bearer token and returns the user it was issued to.
func (v *Verifier) Verify(tokenStr string) (domain.User, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
	if tokenStr == "" {
		return domain.User{}, domain.ErrUnauthenticated
	}

	want := v.keys.method()
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != want.Alg() {
			return nil, ErrInvalidToken
		}
		if want == jwt.SigningMethodRS256 {
			return v.keys.Public, nil
		}
		return v.keys.Secret, nil
	})
	if err != nil {
		// exp/nbf are checked below with skew; the library check has none.
		var ve *jwt.ValidationError
		if !errors.As(err, &ve) || ve.Errors&^(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet|jwt.ValidationErrorIssuedAt) != 0 {
			return domain.User{}, ErrInvalidToken
		}
	} else if !token.Valid {
		return domain.User{}, ErrInvalidToken
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return domain.User{}, ErrInvalidIssuer
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return domain.User{}, ErrInvalidAudience
	}

	now := v.now()
	if claims.ExpiresAt == 0 || now.After(time.Unix(claims.ExpiresAt, 0).Add(v.clockSkew)) {
		return domain.User{}, ErrTokenExpired
	}
	if claims.NotBefore != 0 && now.Before(time.Unix(claims.NotBefore, 0).Add(-v.clockSkew)) {
		return domain.User{}, ErrTokenExpired
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return domain.User{}, ErrInvalidSubject
	}
	return domain.User{ID: claims.Subject, DisplayName: claims.Name}, nil
}

// Signer mints access tokens. The service itself never signs; chatctl and tests do.
type Signer struct {
	keys     Keys
	issuer   string
	audience string
	ttl      time.Duration
}

func NewSigner(keys Keys, issuer, audience string, ttl time.Duration) *Signer {
	return &Signer{keys: keys, issuer: issuer, audience: audience, ttl: ttl}
}

func (s *Signer) Sign(user domain.User, now time.Time) (string, error) {
	claims := AccessClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			Audience:  s.audience,
			IssuedAt:  now.Unix(),
			NotBefore: now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
		Name: user.DisplayName,
	}
	method := s.keys.method()
	token := jwt.NewWithClaims(method, claims)
	if method == jwt.SigningMethodRS256 {
		if s.keys.Private == nil {
			return "", errors.New("security: no private key")
		}
		return token.SignedString(s.keys.Private)
	}
	return token.SignedString(s.keys.Secret)
}

func LoadRSAPrivateKeyFromPEM(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	pk, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not RSA private key")
	}
	return pk, nil
}

func LoadRSAPublicKeyFromPEM(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(b)
}
