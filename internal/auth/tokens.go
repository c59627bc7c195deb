package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sppi/sppi-po/internal/shared"
)

const issuer = "sppi-po"

// Claims is the JWT payload carried by bearer tokens.
type Claims struct {
	UserID      int64       `json:"id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Role        shared.Role `json:"role"`
	NamaLengkap string      `json:"nama_lengkap"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens constructs a token service.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for the user.
func (t *Tokens) Issue(u User) (string, Claims, error) {
	now := t.now()
	claims := Claims{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		NamaLengkap: u.NamaLengkap,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (t *Tokens) Parse(raw string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: token expired", shared.ErrUnauthenticated)
		}
		return Claims{}, fmt.Errorf("%w: invalid token", shared.ErrUnauthenticated)
	}
	if !claims.Role.Valid() || claims.UserID == 0 || claims.ID == "" {
		return Claims{}, fmt.Errorf("%w: invalid token claims", shared.ErrUnauthenticated)
	}
	return claims, nil
}
