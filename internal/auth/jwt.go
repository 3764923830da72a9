package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// TokenType distinguishes access tokens from refresh tokens. Only access
// tokens authenticate API requests.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

type Claims struct {
	Role string    `json:"role"`
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	clock         clockwork.Clock
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

type JWTOption func(*JWTManager)

func WithClock(clock clockwork.Clock) JWTOption {
	return func(m *JWTManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func NewJWTManager(secret string, accessExpiry, refreshExpiry time.Duration, issuer string, opts ...JWTOption) *JWTManager {
	m := &JWTManager{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		issuer:        issuer,
		clock:         clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *JWTManager) AccessExpiry() time.Duration {
	return m.accessExpiry
}

// Generate issues an access token for subject (the user's email).
func (m *JWTManager) Generate(subject, role string) (string, error) {
	return m.sign(subject, role, TokenTypeAccess, m.accessExpiry)
}

func (m *JWTManager) GenerateRefresh(subject, role string) (string, error) {
	return m.sign(subject, role, TokenTypeRefresh, m.refreshExpiry)
}

func (m *JWTManager) sign(subject, role string, typ TokenType, expiry time.Duration) (string, error) {
	if subject == "" || role == "" {
		return "", ErrInvalidToken
	}

	now := m.clock.Now()
	claims := &Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateAccess rejects refresh tokens presented as bearer credentials.
func (m *JWTManager) ValidateAccess(tokenString string) (*Claims, error) {
	claims, err := m.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *JWTManager) ExtractSubject(tokenString string) (string, error) {
	claims, err := m.Validate(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IsTokenValid reports whether the token is unexpired, correctly signed and
// issued to subject.
func (m *JWTManager) IsTokenValid(tokenString, subject string) bool {
	claims, err := m.Validate(tokenString)
	if err != nil {
		return false
	}
	return subject != "" && claims.Subject == subject
}

func TokenFromHeader(authHeader string) (string, error) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(parts[1]), nil
}
