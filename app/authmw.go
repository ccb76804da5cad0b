package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/identity"
	"Gin_postgres_redis_loan_approval/models"
	"Gin_postgres_redis_loan_approval/session"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "app_session"

const actorKey = "actor"

// ErrLoginRefused covers a bad IdP token and a deactivated account alike.
var ErrLoginRefused = errors.New("login refused")

// ActorOf builds the authorization subject from a user loaded with roles.
func ActorOf(u *models.User) *authz.Actor {
	return &authz.Actor{UserID: u.ID, Email: u.Email, Name: u.DisplayName, Roles: u.Roles}
}

// ResolveIdPUser verifies an IdP token and returns the matching user,
// creating it on first sight.
func ResolveIdPUser(ctx context.Context, repo *db.Repo, secret, token string) (*models.User, error) {
	claims, err := identity.VerifyToken(secret, token)
	if err != nil {
		log.Printf("[AUTH] token refused: %v", err)
		return nil, ErrLoginRefused
	}
	u, err := repo.FindOrCreateUser(ctx, claims.Subject, claims.Email, claims.Name)
	if errors.Is(err, db.ErrUserDeactivated) {
		return nil, ErrLoginRefused
	}
	return u, err
}

// AuthRequired accepts the app session cookie or an `Authorization: Bearer`
// IdP token. Roles are reloaded from the DB on every request.
func AuthRequired(appSess *session.AppSessionStore, repo *db.Repo, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		var uid, sid string

		if ck, err := c.Request.Cookie(AppSessionCookie); err == nil && ck.Value != "" {
			as, err := appSess.Get(ctx, ck.Value)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					log.Printf("[AUTH] session lookup: %v", err)
				}
				c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
				return
			}
			uid, sid = as.UserID, ck.Value
		} else if tok, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok && tok != "" {
			u, err := ResolveIdPUser(ctx, repo, cfg.IdPSecret, strings.TrimSpace(tok))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
				return
			}
			uid = u.ID
		} else {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}

		// 这里确认用户仍存在，并把角色放进 Context（只查一次）
		u, err := repo.FindUserByID(ctx, uid)
		if err != nil {
			if sid != "" {
				_ = appSess.Delete(ctx, sid)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		c.Set("userID", u.ID)
		c.Set(actorKey, ActorOf(u))
		c.Next()
	}
}

// CurrentActor is set by AuthRequired; nil on public routes.
func CurrentActor(c *gin.Context) *authz.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return nil
	}
	a, _ := v.(*authz.Actor)
	return a
}

// AdminOnly guards the /api/admin group. Services check again per operation.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		a := CurrentActor(c)
		if a == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !a.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "not permitted"})
			return
		}
		c.Next()
	}
}
