// app/bootstrap.go
package app

import (
	"context"
	"errors"
	"log"

	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/models"
)

// BootstrapAdmins gives every ADMIN_EMAILS address the admin role. A user who
// has never logged in gets a placeholder row; the first IdP login fills in
// the external id and name.
func BootstrapAdmins(ctx context.Context, cfg Config, repo *db.Repo) {
	if len(cfg.AdminEmails) == 0 {
		log.Printf("[BOOTSTRAP] ADMIN_EMAILS is empty, no admin assigned")
		return
	}
	for _, email := range cfg.AdminEmails {
		u, err := repo.FindUserByEmail(ctx, email)
		if errors.Is(err, models.ErrNotFound) {
			u, err = repo.FindOrCreateUser(ctx, "", email, email)
		}
		if err != nil {
			log.Printf("[BOOTSTRAP] admin %s: %v", email, err)
			continue
		}
		if _, err := repo.AssignRole(ctx, u.ID, models.RoleAdmin, nil); err != nil {
			log.Printf("[BOOTSTRAP] admin %s: %v", email, err)
			continue
		}
		log.Printf("[BOOTSTRAP] %s holds the admin role", email)
	}
}
