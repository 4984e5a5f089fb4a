package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/consult-booking/internal/identity"
)

type contextKey string

const claimsKey contextKey = "jwtClaims"

var errMissingBearer = errors.New("missing authorization header")

// AdminJWT enforces an HMAC-signed operator token. The token subject is
// recorded as the admin identity.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeAuthError(w, "admin auth disabled")
				return
			}
			claims, err := verifyBearer(r, secret)
			if err != nil {
				writeAuthError(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), claims)))
		})
	}
}

// PatientJWT enforces an HMAC-signed patient token whose subject is the
// patient id.
func PatientJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeAuthError(w, "patient auth disabled")
				return
			}
			claims, err := verifyBearer(r, secret)
			if err != nil {
				writeAuthError(w, err.Error())
				return
			}
			ctx, ok := withPatient(r.Context(), claims)
			if !ok {
				writeAuthError(w, "token subject required")
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PatientOrAdminJWT accepts either token kind. The admin secret is tried
// first so operators are never mistaken for patients.
func PatientOrAdminJWT(patientSecret, adminSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminSecret != "" {
				if claims, err := verifyBearer(r, adminSecret); err == nil {
					next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), claims)))
					return
				}
			}
			if patientSecret != "" {
				if claims, err := verifyBearer(r, patientSecret); err == nil {
					if ctx, ok := withPatient(r.Context(), claims); ok {
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}
			}
			writeAuthError(w, "invalid token")
		})
	}
}

// ClaimsFromContext returns the verified JWT claims if present.
func ClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(jwt.RegisteredClaims)
	return claims, ok
}

func verifyBearer(r *http.Request, secret string) (jwt.RegisteredClaims, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return jwt.RegisteredClaims{}, errMissingBearer
	}
	tokenString := strings.TrimPrefix(auth, "Bearer ")
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return jwt.RegisteredClaims{}, errors.New("invalid token")
	}
	return claims, nil
}

func withAdmin(ctx context.Context, claims jwt.RegisteredClaims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return identity.WithAdmin(ctx, claims.Subject)
}

func withPatient(ctx context.Context, claims jwt.RegisteredClaims) (context.Context, bool) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return ctx, false
	}
	ctx = context.WithValue(ctx, claimsKey, claims)
	return identity.WithPatientID(ctx, subject), true
}

func writeAuthError(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
