package workspace

import (
	"crypto/rand"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
)

// ErrInvalidToken is returned for tokens that were not issued by this
// server or have expired.
var ErrInvalidToken = errors.New("invalid workspace token")

// Tokens signs workspace ids into HS256 session tokens so clients cannot
// guess their way into another user's workspace.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens uses secret, or a random per-process key when secret is empty.
// A zero ttl issues tokens that never expire.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, errors.Wrap(err, "generate token key")
		}
	}
	return &Tokens{secret: key, ttl: ttl}, nil
}

// Issue returns a token for workspace id.
func (t *Tokens) Issue(id string) (string, error) {
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:  id,
		IssuedAt: now.Unix(),
	}
	if t.ttl > 0 {
		claims.ExpiresAt = now.Add(t.ttl).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign workspace token")
	}
	return s, nil
}

// Parse returns the workspace id inside token.
func (t *Tokens) Parse(token string) (string, error) {
	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
