// controllers/srv.go
package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_loan_approval/app"
	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/cart"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/models"
	"Gin_postgres_redis_loan_approval/session"
	"Gin_postgres_redis_loan_approval/workflow"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const msgRetry = "something went wrong, please retry"

type Srv struct {
	Repo      *db.Repo
	AppSess   *session.AppSessionStore
	WF        *workflow.Service
	Cart      *cart.Cart
	WebOrigin string
	Cfg       app.Config
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:      a.Repo,
		AppSess:   a.AppSessions(),
		WF:        a.Workflow,
		Cart:      a.Cart,
		WebOrigin: a.Config.WebOrigin,
		Cfg:       a.Config,
	}
}

func (s *Srv) GetAppSess() *session.AppSessionStore { return s.AppSess }

// --- helpers ---

// 统一设置业务会话 Cookie
func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.WebOrigin, "https://")
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(maxAge / time.Second),
	})
}

func (s *Srv) clearAppCookie(w http.ResponseWriter) {
	s.setAppCookie(w, "", -time.Second)
}

// 登录成功：创建会话 + 登录快照
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, userID string) error {
	if err := s.Repo.TouchUserLogin(ctx, userID); err != nil {
		log.Printf("[AUTH] touch login %s: %v", userID, err) // 不阻塞
	}
	as, err := s.AppSess.Create(ctx, userID)
	if err != nil {
		return err
	}
	s.setAppCookie(w, as.ID, s.AppSess.TTL())
	return nil
}

// actor: AuthRequired guarantees it on protected groups.
func actor(c *gin.Context) *authz.Actor { return app.CurrentActor(c) }

// fail maps the error taxonomy onto HTTP. Anything unknown is a persistence
// failure: logged with detail, answered generically.
func fail(c *gin.Context, err error) {
	var (
		v  *apperr.ValidationError
		a  *apperr.AuthorizationError
		cp *apperr.CapacityError
		ri *apperr.ReferentialIntegrityError
		st *apperr.StateTransitionError
		nf *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &v):
		c.JSON(http.StatusBadRequest, app.H{"error": v.Error(), "field": v.Field})
	case errors.As(err, &a):
		if a.Reason != "" {
			log.Printf("[AUTHZ] %s %s: %s", c.Request.Method, c.FullPath(), a.Reason)
		}
		c.JSON(http.StatusForbidden, app.H{"error": a.Error()})
	case errors.As(err, &cp):
		c.JSON(http.StatusConflict, app.H{"error": cp.Error(), "shortfalls": cp.Shortfalls})
	case errors.As(err, &ri):
		c.JSON(http.StatusConflict, app.H{"error": ri.Error(), "references": ri.References})
	case errors.As(err, &st):
		c.JSON(http.StatusConflict, app.H{"error": st.Error()})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, app.H{"error": nf.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, app.H{"error": "not found"})
	case errors.Is(err, gorm.ErrDuplicatedKey):
		c.JSON(http.StatusConflict, app.H{"error": "already exists"})
	default:
		log.Printf("[HTTP] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, app.H{"error": msgRetry})
	}
}

// badBody answers a JSON decode failure.
func badBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, app.H{"error": "invalid request: " + err.Error()})
}
