package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"collabnote/internal/identity"
	"collabnote/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// Auth validates the HMAC-signed bearer token of every request and stores
// the caller's identity in the request context.
func Auth(secret string) func(http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		if secret == "" {
			return nil, fmt.Errorf("server is not configured to validate JWTs")
		}
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Browsers cannot set headers on a websocket handshake, so the
			// token may also come in the query string.
			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if tokenString == "" {
				http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, keyFunc)
			if err != nil || !token.Valid {
				logger.Sugar.Warnf("Invalid token: %v", err)
				http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Unauthorized: Could not parse token claims", http.StatusUnauthorized)
				return
			}
			user, ok := userFromClaims(claims)
			if !ok {
				http.Error(w, "Unauthorized: User ID (sub) claim is missing or invalid", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user)))
		})
	}
}

// userFromClaims reads sub, email and the display name. The name is taken
// from full_name or from user_metadata.full_name.
func userFromClaims(claims jwt.MapClaims) (identity.User, bool) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return identity.User{}, false
	}
	user := identity.User{ID: sub}
	user.Email, _ = claims["email"].(string)
	user.FullName, _ = claims["full_name"].(string)
	if user.FullName == "" {
		if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
			user.FullName, _ = meta["full_name"].(string)
		}
	}
	return user, true
}
