package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jjudge-oj/accounts/internal/apperror"
	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/types"
)

type contextKey string

const contextSessionKey contextKey = "session"

// Session is the authenticated caller resolved by RequireAuth.
type Session struct {
	User  types.User
	Token string
}

// TokenVerifier resolves a bearer token to its owner.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (types.User, string, error)
}

// RequireAuth rejects requests without a live session token and stores the
// resolved Session in the request context.
func RequireAuth(verifier TokenVerifier, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, services.ErrInvalidToken.Message)
				return
			}

			user, token, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				if apperror.Is(err, apperror.KindAuth) {
					writeError(w, http.StatusUnauthorized, services.ErrInvalidToken.Message)
					return
				}
				logger.Error(r.Context(), "token verification failed", "error", err)
				writeEmpty(w, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), contextSessionKey, Session{User: user, Token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(contextSessionKey).(Session)
	return session, ok
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
