// Package auth provides JWT token management for the admin API surface.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ferrovax/gatehouse/internal/middleware"
)

// TokenExpiry is how long an admin session token stays valid. Sessions
// are expected to span a teaching day.
const TokenExpiry = 12 * time.Hour

// DefaultLeeway for token validation.
const DefaultLeeway = 30 * time.Second

// ErrInvalidToken is returned when token validation fails.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned when the token has expired.
var ErrExpiredToken = errors.New("token has expired")

// ErrEmptySubject is returned when the subject is empty.
var ErrEmptySubject = errors.New("subject cannot be empty")

// ErrBadCredentials is returned when login credentials do not match.
var ErrBadCredentials = errors.New("bad credentials")

// Claims represents the JWT claims for admin tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTService handles JWT token operations. Tokens are signed with
// currentSecret but validate against either currentSecret or
// previousSecret, allowing zero-downtime secret rotation.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
}

// NewJWTService creates a JWTService with a single secret.
func NewJWTService(secret string) *JWTService {
	return &JWTService{
		currentSecret: []byte(secret),
		leeway:        DefaultLeeway,
	}
}

// NewJWTServiceWithRotation creates a JWTService with dual-key support.
// Set previousSecret to empty string if no rotation is in progress.
func NewJWTServiceWithRotation(currentSecret, previousSecret string) *JWTService {
	svc := &JWTService{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
	}
	if previousSecret != "" {
		svc.previousSecret = []byte(previousSecret)
	}
	return svc
}

// GenerateToken creates a signed admin token for the given subject.
func (s *JWTService) GenerateToken(subject string) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
		},
		Role: "admin",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.currentSecret)
}

// ValidateToken parses and validates a token, returning the claims if
// valid. Tries currentSecret first, then previousSecret if set.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return s.currentSecret, nil
	}, jwt.WithLeeway(s.leeway))

	if err == nil {
		claims, ok := token.Claims.(*Claims)
		if ok && token.Valid {
			return claims, nil
		}
		return nil, ErrInvalidToken
	}

	if s.previousSecret != nil {
		token, err = jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, ErrInvalidToken
			}
			return s.previousSecret, nil
		}, jwt.WithLeeway(s.leeway))

		if err == nil {
			claims, ok := token.Claims.(*Claims)
			if ok && token.Valid {
				return claims, nil
			}
		}
	}

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

// CheckCredentials compares login credentials against the configured
// admin user in constant time.
func CheckCredentials(username, password, wantUser, wantPass string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(wantPass)) == 1
	if !userOK || !passOK {
		return ErrBadCredentials
	}
	return nil
}

// RequireAdmin wraps a handler and rejects requests without a valid
// Bearer token. On success the admin subject is stored in the request
// context for the logging middleware and downstream handlers.
func RequireAdmin(svc *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(header, prefix) {
				unauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := svc.ValidateToken(strings.TrimPrefix(header, prefix))
			if err != nil {
				if errors.Is(err, ErrExpiredToken) {
					unauthorized(w, r, "token expired")
					return
				}
				unauthorized(w, r, "invalid token")
				return
			}

			ctx := middleware.SetAdminSubject(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	ctx := middleware.SetErrorCode(r.Context(), "unauthorized")
	middleware.UpdateResponseContext(w, ctx)
	w.Header().Set("WWW-Authenticate", `Bearer realm="gatehouse"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
