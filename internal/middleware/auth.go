package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/api/transport"
	"github.com/fastygo/tasktracker/domain"
	"github.com/fastygo/tasktracker/pkg/httpcontext"
	authUC "github.com/fastygo/tasktracker/usecase/auth"
)

// TokenParser verifies a bearer token.
type TokenParser interface {
	Parse(raw string) (*authUC.Claims, error)
}

// SessionValidator confirms the session behind a token is still live.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)
}

// JWTAuth admits requests that carry a valid token whose session has not been
// revoked, and records the caller's identity on the request.
func JWTAuth(tokens TokenParser, sessions SessionValidator, timeout time.Duration, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "missing token")
				return
			}

			claims, err := tokens.Parse(tokenString)
			if err != nil {
				logger.Debug("invalid jwt token", zap.Error(err))
				reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "invalid token")
				return
			}

			if sessions != nil {
				stdCtx, cancel := context.WithTimeout(context.Background(), timeout)
				_, err = sessions.ValidateSession(stdCtx, claims.SessionID, claims.UserID)
				cancel()
				if err != nil {
					if domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
						reject(ctx, http.StatusUnauthorized, domain.ErrCodeUnauthorized, "session expired")
						return
					}
					logger.Error("session lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
					reject(ctx, http.StatusServiceUnavailable, domain.ErrCodeUnavailable, "session store unavailable")
					return
				}
			}

			httpcontext.SetIdentity(ctx, claims.UserID, claims.SessionID)
			next(ctx)
		}
	}
}

func reject(ctx *fasthttp.RequestCtx, status int, code domain.ErrorCode, message string) {
	body, _ := json.Marshal(transport.NewError(string(code), message, nil))
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return header
}
