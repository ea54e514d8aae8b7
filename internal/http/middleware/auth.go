package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/askflow-backend/internal/http/response"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

const ctxSubject = "auth_subject"

// SchedulerAuth guards the stage trigger routes. Callers (cron, a scheduler, an operator)
// present an HS256 bearer token signed with the shared trigger secret.
type SchedulerAuth struct {
	log    *logger.Logger
	secret []byte
	issuer string
}

func NewSchedulerAuth(log *logger.Logger, secret string, issuer string) *SchedulerAuth {
	return &SchedulerAuth{
		log:    log.With("Middleware", "SchedulerAuth"),
		secret: []byte(strings.TrimSpace(secret)),
		issuer: strings.TrimSpace(issuer),
	}
}

// Enabled is false when no secret is configured; the routes are then open, which is
// only meant for local runs.
func (a *SchedulerAuth) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

func (a *SchedulerAuth) RequireScheduler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Enabled() {
			c.Next()
			return
		}
		raw := bearerToken(c)
		if raw == "" {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		claims, err := a.Parse(raw)
		if err != nil {
			a.log.Debug("Rejected trigger token", "error", err)
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		if sub, _ := claims.GetSubject(); sub != "" {
			c.Set(ctxSubject, sub)
		}
		c.Next()
	}
}

// Subject is the token subject of an authenticated trigger call, or "".
func Subject(c *gin.Context) string {
	return c.GetString(ctxSubject)
}

// Parse validates signature, expiry and (when configured) issuer.
func (a *SchedulerAuth) Parse(raw string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Sign mints a trigger token. Used by tooling and tests.
func (a *SchedulerAuth) Sign(subject string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", errors.New("trigger secret not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
