/**
 * @description
 * This file contains the authentication middleware for both caller tiers:
 * account holders presenting a Bearer token and merchants presenting an API
 * key. Each middleware resolves an identity, stores it on the request
 * context, and rejects with the stable coded error shape on failure.
 */

package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/payvault/ledger-service/internal/app"
	"github.com/payvault/ledger-service/internal/domain"
)

type contextKey string

const (
	accountIDKey   contextKey = "accountID"
	accountRoleKey contextKey = "accountRole"
	authContextKey contextKey = "merchantAuth"
)

// AuthMiddleware validates an HS256 Bearer token and stores the account
// identity on the context.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if authHeader == "" || tokenString == authHeader {
				writeErrorCode(w, http.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				writeErrorCode(w, http.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeErrorCode(w, http.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}
			sub, _ := claims["sub"].(string)
			accountID, err := uuid.Parse(sub)
			if err != nil {
				writeErrorCode(w, http.StatusUnauthorized, domain.ErrUnauthorized)
				return
			}
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			ctx = context.WithValue(ctx, accountRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the authenticated caller identity set by AuthMiddleware.
func AccountFromContext(ctx context.Context) (uuid.UUID, string, bool) {
	id, ok := ctx.Value(accountIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, "", false
	}
	role, _ := ctx.Value(accountRoleKey).(string)
	return id, role, true
}

// APIKeyMiddleware authenticates merchant calls through the gateway's ordered
// acceptance checks and stores the resolved (business, key) pair.
func APIKeyMiddleware(service *app.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get("X-API-Key")
			auth, err := service.AuthenticateAPIKey(r.Context(), rawKey, clientIP(r), r.Header.Get("Origin"))
			if err != nil {
				var derr *domain.Error
				status := http.StatusUnauthorized
				if e, ok := err.(*domain.Error); ok {
					derr = e
					status = statusForCode(e.Code)
				} else {
					derr = domain.ErrInternal
					status = http.StatusInternalServerError
				}
				writeErrorCode(w, status, derr)
				return
			}
			ctx := context.WithValue(r.Context(), authContextKey, auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MerchantAuthFromContext returns the gateway result set by APIKeyMiddleware.
func MerchantAuthFromContext(ctx context.Context) (*app.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey).(*app.AuthContext)
	return auth, ok
}

// clientIP extracts the caller address, preferring the first X-Forwarded-For
// hop when a proxy sits in front.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
