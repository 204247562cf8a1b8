package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/uptrace/bun"

	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
	"ms-speakers/internal/utils"
)

type RoleChecker interface {
	HasAnyRole(ctx context.Context, email string, roles ...string) (bool, error)
}

// RoleDB reads the roles table.
type RoleDB struct {
	Bun *bun.DB
}

func (d *RoleDB) HasAnyRole(ctx context.Context, email string, roles ...string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}
	return d.Bun.NewSelect().
		Model((*models.Role)(nil)).
		Where("email = ?", email).
		Where("role IN (?)", bun.In(roles)).
		Exists(ctx)
}

func (d *RoleDB) Grant(ctx context.Context, email, role string) error {
	_, err := d.Bun.NewInsert().
		Model(&models.Role{Email: email, Role: role}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

// RequireRole lets the request through only if the identity holds one of roles.
// It must run after Middleware.
func RequireRole(checker RoleChecker, log *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				utils.WriteError(w, http.StatusUnauthorized, "authentication required", "")
				return
			}

			allowed, err := checker.HasAnyRole(r.Context(), id.Email, roles...)
			if err != nil {
				log.Error("AUTH", fmt.Sprintf("Role lookup failed for %s: %v", id.Email, err))
				utils.WriteError(w, http.StatusInternalServerError, "failed to check permissions", "")
				return
			}
			if !allowed {
				log.LogSecurity("FORBIDDEN", fmt.Sprintf("%s lacks %v for %s %s", id.Email, roles, r.Method, r.URL.Path))
				utils.WriteError(w, http.StatusForbidden, "insufficient permissions", "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
