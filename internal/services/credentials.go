package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/apperror"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 7
	forbiddenPassword = "password"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = apperror.Auth("Unable to login", nil)

	// ErrInvalidToken is returned for bad signatures, expired tokens and revoked sessions.
	ErrInvalidToken = apperror.Auth("Please authenticate.", nil)
)

// CredentialService hashes passwords and manages session tokens.
type CredentialService struct {
	repo       UserRepository
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

func NewCredentialService(repo UserRepository, cfg config.AuthConfig) (*CredentialService, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}

	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}

	// Compared against when the email is unknown so both login failures cost the same.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, err
	}

	return &CredentialService{
		repo:       repo,
		secret:     []byte(cfg.JWTSecret),
		tokenTTL:   cfg.TokenTTL,
		bcryptCost: cost,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// HashPassword enforces the password policy and returns a bcrypt hash.
func (s *CredentialService) HashPassword(candidate string) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) < minPasswordLength {
		return "", apperror.Validation("Password must be at least 7 characters long")
	}
	if strings.Contains(strings.ToLower(candidate), forbiddenPassword) {
		return "", apperror.Validation(`Password cannot contain "password"`)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(candidate), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperror.Validation("Password is too long")
		}
		return "", apperror.Internal("failed to hash password", err)
	}
	return string(hashed), nil
}

// Authenticate looks the user up by email and verifies the password.
func (s *CredentialService) Authenticate(ctx context.Context, email, candidate string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(candidate))
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, apperror.Internal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(strings.TrimSpace(candidate))); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken signs a new session token for user and adds it to the active set.
func (s *CredentialService) IssueToken(ctx context.Context, user types.User) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Subject:  user.ID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if s.tokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.tokenTTL))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", apperror.Internal("failed to create token", err)
	}

	if err := s.repo.AddToken(ctx, user.ID, token); err != nil {
		return "", apperror.Internal("failed to save token", err)
	}
	return token, nil
}

// RevokeToken removes one session. Revoking an absent token is not an error.
func (s *CredentialService) RevokeToken(ctx context.Context, user types.User, token string) error {
	if err := s.repo.RemoveToken(ctx, user.ID, token); err != nil {
		return apperror.Internal("failed to revoke token", err)
	}
	return nil
}

// RevokeAllTokens ends every session of user.
func (s *CredentialService) RevokeAllTokens(ctx context.Context, user types.User) error {
	if err := s.repo.ClearTokens(ctx, user.ID); err != nil {
		return apperror.Internal("failed to revoke tokens", err)
	}
	return nil
}

// VerifyToken checks the signature and expiry of token, then requires it to
// still be in the owner's active set.
func (s *CredentialService) VerifyToken(ctx context.Context, token string) (types.User, string, error) {
	subject, err := s.parseTokenSubject(token)
	if err != nil {
		return types.User{}, "", ErrInvalidToken
	}

	user, err := s.repo.GetByID(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidToken
		}
		return types.User{}, "", apperror.Internal("failed to load user", err)
	}

	if !user.HasToken(token) {
		return types.User{}, "", ErrInvalidToken
	}
	return user, token, nil
}

func (s *CredentialService) parseTokenSubject(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
