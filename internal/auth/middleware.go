package auth

import (
	"fmt"
	"net/http"

	"ms-speakers/internal/logger"
	"ms-speakers/internal/utils"
)

// Middleware verifies the caller's token and stores the Identity in the request context.
func Middleware(verifier Verifier, cookieName string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r, cookieName)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, "authentication required", err.Error())
				return
			}

			id, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				log.LogSecurity("TOKEN_REJECTED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteError(w, http.StatusUnauthorized, "authentication required", "invalid session")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
