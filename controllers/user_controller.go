package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"Gin_postgres_redis_loan_approval/app"
	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type UserController struct{ *Srv }

func GetUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/admin/users?q=alice&page=1&size=20
func (uc *UserController) ListUsers(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageUsers); err != nil {
		fail(c, err)
		return
	}
	q := c.Query("q")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.Repo.ListUsers(c.Request.Context(), q, page, size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"total": res.Total,
		"users": res.Users,
	})
}

// GET /api/admin/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageUsers); err != nil {
		fail(c, err)
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil { // 校验 UUID 格式
		fail(c, apperr.Invalid("id", "invalid uuid"))
		return
	}
	user, err := uc.Repo.FindUserByID(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		fail(c, apperr.NotFound("user"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": user})
}

// DELETE /api/admin/users/:id 停用账号，历史申请保留
func (uc *UserController) DeleteUser(c *gin.Context) {
	a := actor(c)
	if err := authz.Check(a, authz.OpManageUsers); err != nil {
		fail(c, err)
		return
	}
	id := c.Param("id")
	// 不允许停用自己，避免锁死
	if id == a.UserID {
		fail(c, apperr.Invalid("id", "cannot deactivate yourself"))
		return
	}
	ctx := c.Request.Context()
	target, err := uc.Repo.FindUserByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		fail(c, apperr.NotFound("user"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	for _, admin := range uc.Cfg.AdminEmails {
		if strings.EqualFold(target.Email, admin) {
			fail(c, &apperr.AuthorizationError{Reason: "bootstrap admin", Public: "cannot deactivate a bootstrap admin"})
			return
		}
	}

	if err := uc.Repo.DeactivateUser(ctx, id); err != nil {
		fail(c, err)
		return
	}
	// 撤销该用户的所有登录会话
	if err := uc.AppSess.RevokeAllForUser(ctx, id); err != nil {
		log.Printf("[AUTH] revoke sessions of %s: %v", id, err)
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/admin/users/:id/roles
func (uc *UserController) ListRoles(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageRoles); err != nil {
		fail(c, err)
		return
	}
	rs, err := uc.Repo.ListRoles(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"roles": rs})
}

// POST /api/admin/users/:id/roles {role, departmentId}
func (uc *UserController) AssignRole(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageRoles); err != nil {
		fail(c, err)
		return
	}
	var in struct {
		Role         models.Role `json:"role" binding:"required"`
		DepartmentID *string     `json:"departmentId"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	if !in.Role.Valid() {
		fail(c, apperr.Invalid("role", "unknown role %q", in.Role))
		return
	}
	if in.DepartmentID != nil && *in.DepartmentID == "" {
		in.DepartmentID = nil
	}
	ctx := c.Request.Context()
	switch {
	case in.Role == models.RoleOwner && in.DepartmentID == nil:
		fail(c, apperr.Invalid("departmentId", "an owner needs a department"))
		return
	case in.Role != models.RoleOwner && in.DepartmentID != nil:
		fail(c, apperr.Invalid("departmentId", "only owners are scoped to a department"))
		return
	}
	if in.DepartmentID != nil {
		if _, err := uc.Repo.FindDepartmentByID(ctx, *in.DepartmentID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				err = apperr.Invalid("departmentId", "unknown department")
			}
			fail(c, err)
			return
		}
	}
	if _, err := uc.Repo.FindUserByID(ctx, c.Param("id")); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = apperr.NotFound("user")
		}
		fail(c, err)
		return
	}
	ra, err := uc.Repo.AssignRole(ctx, c.Param("id"), in.Role, in.DepartmentID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ra)
}

// DELETE /api/admin/roles/:roleId
func (uc *UserController) RevokeRole(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageRoles); err != nil {
		fail(c, err)
		return
	}
	if err := uc.Repo.RevokeRole(c.Request.Context(), c.Param("roleId")); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = apperr.NotFound("role assignment")
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
