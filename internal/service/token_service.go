package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
)

// TeacherClaims is the JWT payload issued to teacher accounts.
type TeacherClaims struct {
	TeacherID string `json:"teacher_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 access tokens for teachers. The
// grade API itself does not manage accounts; it trusts tokens minted by the
// school's identity service using the shared secret.
type TokenService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenService constructs the service.
func NewTokenService(secret string, expiry time.Duration) *TokenService {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		expiry: expiry,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue signs a token for the teacher.
func (s *TokenService) Issue(teacherID, email string) (string, time.Time, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.expiry)
	claims := &TeacherClaims{
		TeacherID: teacherID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "markbook-api",
			Subject:   teacherID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses and checks a token, returning its claims.
func (s *TokenService) Validate(tokenString string) (*TeacherClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TeacherClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*TeacherClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
