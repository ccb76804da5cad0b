package controllers

import (
	"errors"
	"net/http"

	"Gin_postgres_redis_loan_approval/app"

	"github.com/gin-gonic/gin"
)

type AuthController struct{ *Srv }

func NewAuthController(s *Srv) *AuthController { return &AuthController{Srv: s} }

// POST /auth/session {token}: 用 IdP token 换业务会话
func (ac *AuthController) CreateSession(c *gin.Context) {
	var in struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	ctx := c.Request.Context()
	u, err := app.ResolveIdPUser(ctx, ac.Repo, ac.Cfg.IdPSecret, in.Token)
	if errors.Is(err, app.ErrLoginRefused) {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	if err := ac.issueSession(ctx, c.Writer, u.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": u})
}

// GET /auth/whoami
func (ac *AuthController) WhoAmI(c *gin.Context) {
	a := actor(c)
	c.JSON(http.StatusOK, app.H{
		"userID":           a.UserID,
		"email":            a.Email,
		"name":             a.Name,
		"roles":            a.Roles,
		"ownedDepartments": a.OwnedDepartments(),
		"isAdmin":          a.IsAdmin(),
	})
}

// POST /auth/logout
func (ac *AuthController) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = ac.AppSess.Delete(c.Request.Context(), ck.Value)
	}
	ac.clearAppCookie(c.Writer)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
