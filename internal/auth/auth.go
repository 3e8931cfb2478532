package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xtrntr/feeledger/internal/models"
)

var (
	// ErrInvalidSignature is returned when a login proof does not verify
	ErrInvalidSignature = errors.New("invalid login signature")
	// ErrStaleLogin is returned when a login timestamp is too far from now
	ErrStaleLogin = errors.New("login timestamp outside allowed skew")
	// ErrInvalidToken is returned for malformed, forged or expired tokens
	ErrInvalidToken = errors.New("invalid or expired token")
)

const loginDomain = "feeledger-login:"

// AuthService exchanges signed login proofs for bearer tokens. An identity is
// an ed25519 public key; holding the token proves control of that key.
type AuthService struct {
	secret []byte
	ttl    time.Duration
	skew   time.Duration
	now    func() time.Time
}

// NewAuthService creates a service signing tokens with secret
func NewAuthService(secret []byte, ttl, maxClockSkew time.Duration) *AuthService {
	return &AuthService{
		secret: secret,
		ttl:    ttl,
		skew:   maxClockSkew,
		now:    time.Now,
	}
}

// LoginMessage is the byte string a client signs to log in as id at unix
// time ts.
func LoginMessage(id models.Identity, ts int64) []byte {
	return []byte(loginDomain + id.String() + ":" + strconv.FormatInt(ts, 10))
}

// Login verifies sig over LoginMessage(id, ts) and returns a signed token
func (s *AuthService) Login(id models.Identity, ts int64, sig []byte) (string, error) {
	now := s.now()
	if d := now.Sub(time.Unix(ts, 0)); d > s.skew || d < -s.skew {
		return "", ErrStaleLogin
	}
	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(id[:]), LoginMessage(id, ts), sig) {
		return "", ErrInvalidSignature
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// IdentityFromToken returns the identity a token was issued to
func (s *AuthService) IdentityFromToken(tokenString string) (models.Identity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := models.ParseIdentity(claims.Subject)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return id, nil
}
