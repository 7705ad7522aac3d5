package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"picshare/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "picshare"

type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type AppClaims struct {
	UserID   int64   `json:"user_id"`
	Username string  `json:"username,omitempty"`
	Email    string  `json:"email,omitempty"`
	FullName string  `json:"full_name,omitempty"`
	Purpose  Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

type keyConfig struct {
	secret []byte
	ttl    time.Duration
}

// TokenIssuer signs and verifies access and refresh tokens. Each purpose has
// its own secret, so a refresh token never verifies as an access token.
type TokenIssuer struct {
	keys map[Purpose]keyConfig
	now  func() time.Time
}

func NewTokenIssuer(accessSecret string, accessTTL time.Duration, refreshSecret string, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		keys: map[Purpose]keyConfig{
			PurposeAccess:  {secret: []byte(accessSecret), ttl: accessTTL},
			PurposeRefresh: {secret: []byte(refreshSecret), ttl: refreshTTL},
		},
		now: time.Now,
	}
}

func (ti *TokenIssuer) IssueAccessToken(user *models.User) (string, error) {
	claims := &AppClaims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
	}
	return ti.sign(PurposeAccess, claims)
}

func (ti *TokenIssuer) IssueRefreshToken(user *models.User) (string, error) {
	return ti.sign(PurposeRefresh, &AppClaims{UserID: user.ID})
}

func (ti *TokenIssuer) sign(purpose Purpose, claims *AppClaims) (string, error) {
	key := ti.keys[purpose]
	now := ti.now()

	claims.Purpose = purpose
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(claims.UserID, 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(key.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(key.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (ti *TokenIssuer) Verify(tokenString string, purpose Purpose) (*AppClaims, error) {
	key, ok := ti.keys[purpose]
	if !ok {
		return nil, fmt.Errorf("%w: unknown purpose %q", ErrInvalidToken, purpose)
	}

	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return key.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(ti.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AppClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, jwt.ErrTokenInvalidClaims)
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, purpose, claims.Purpose)
	}

	return claims, nil
}
