package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	purposeAccess    = "access"
	purposeChallenge = "2fa_challenge"
)

// ErrUnauthorized marks failures that map to 401
var ErrUnauthorized = errors.New("unauthorized")

var (
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
)

// AccessClaims holds the JWT claims for access and 2FA challenge tokens
type AccessClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
}

// TokenProvider issues and validates HS256 tokens
type TokenProvider struct {
	secret       []byte
	issuer       string
	accessTTL    time.Duration
	challengeTTL time.Duration
	now          func() time.Time
}

func NewTokenProvider(secret, issuer string, accessTTL, challengeTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		secret:       []byte(secret),
		issuer:       issuer,
		accessTTL:    accessTTL,
		challengeTTL: challengeTTL,
		now:          time.Now,
	}
}

// IssueAccess signs an access token for the user
func (p *TokenProvider) IssueAccess(userID, email string) (string, time.Time, error) {
	return p.issue(userID, email, purposeAccess, p.accessTTL)
}

// IssueChallenge signs the short-lived token handed out when a login still
// needs a second factor
func (p *TokenProvider) IssueChallenge(userID string) (string, time.Time, error) {
	return p.issue(userID, "", purposeChallenge, p.challengeTTL)
}

func (p *TokenProvider) issue(userID, email, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := p.now().UTC()
	expiresAt := now.Add(ttl)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:   email,
		Purpose: purpose,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateAccess parses an access token (signature, exp, iss)
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	return p.validate(tokenString, purposeAccess)
}

// ValidateChallenge parses a 2FA challenge token and returns the user ID
func (p *TokenProvider) ValidateChallenge(tokenString string) (string, error) {
	claims, err := p.validate(tokenString, purposeChallenge)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (p *TokenProvider) validate(tokenString, purpose string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" || claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractTokenFromHeader extracts the token from "Bearer <token>"
func ExtractTokenFromHeader(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: authorization header must be 'Bearer <token>'", ErrUnauthorized)
	}
	return strings.TrimSpace(parts[1]), nil
}
