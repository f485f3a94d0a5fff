package auth

import (
	"net/http"
	"strings"

	dErrors "enrolld/pkg/domain-errors"
	"enrolld/pkg/platform/httputil"
	"enrolld/pkg/requestcontext"
)

// TokenValidator validates bearer tokens presented to the enrollment API.
type TokenValidator interface {
	ValidateToken(tokenString string) (*ValidatedToken, error)
}

// ValidatedToken carries what middleware needs from a verified token.
type ValidatedToken struct {
	Subject string
}

// RequireServiceToken rejects requests without a valid bearer token and puts
// the authenticated subject on the request context.
func RequireServiceToken(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}

			token, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid bearer token"))
				return
			}

			ctx := requestcontext.WithSubject(r.Context(), token.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
