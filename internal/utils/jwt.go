package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// RoleAdmin is the only role the admin API issues.
const RoleAdmin = "admin"

// JWTClaims admin API token claims
type JWTClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates HS256 tokens.
type JWTManager struct {
	secretKey string
	issuer    string
	expiry    time.Duration
	now       func() time.Time
}

// NewJWTManager creates a manager. expiry <= 0 issues tokens without an
// expiry.
func NewJWTManager(secretKey, issuer string, expiry time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		issuer:    issuer,
		expiry:    expiry,
		now:       time.Now,
	}
}

// GenerateToken signs a token for subject.
func (j *JWTManager) GenerateToken(subject, role string) (string, error) {
	if j.secretKey == "" {
		return "", apperrors.New(apperrors.ErrConfigMissing, "security.jwt.secret")
	}
	now := j.now()
	claims := &JWTClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   subject,
		},
	}
	if j.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(j.expiry))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ValidateToken parses tokenString and checks its signature, expiry and
// issuer.
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	if j.secretKey == "" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "token signing is not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(j.secretKey), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrap(err, apperrors.ErrTokenExpired)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrTokenInvalid)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid)
	}
	return claims, nil
}

// Expiry token lifetime
func (j *JWTManager) Expiry() time.Duration {
	return j.expiry
}
