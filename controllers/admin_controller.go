package controllers

import (
	"errors"
	"net/http"
	"strings"

	"Gin_postgres_redis_loan_approval/app"
	"Gin_postgres_redis_loan_approval/apperr"
	"Gin_postgres_redis_loan_approval/authz"
	"Gin_postgres_redis_loan_approval/models"

	"github.com/gin-gonic/gin"
)

// AdminController: departments, categories and maintenance passes.
type AdminController struct{ *Srv }

func NewAdminController(s *Srv) *AdminController { return &AdminController{Srv: s} }

type namedBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// GET /api/departments 公开
func (ac *AdminController) ListDepartments(c *gin.Context) {
	ds, err := ac.Repo.ListDepartments(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"departments": ds})
}

// POST /api/admin/departments
func (ac *AdminController) CreateDepartment(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageDepartments); err != nil {
		fail(c, err)
		return
	}
	var in namedBody
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		fail(c, apperr.Invalid("name", "is required"))
		return
	}
	d := &models.Department{Name: strings.TrimSpace(in.Name), Description: strings.TrimSpace(in.Description)}
	if err := ac.Repo.CreateDepartment(c.Request.Context(), d); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// PUT /api/admin/departments/:id
func (ac *AdminController) UpdateDepartment(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageDepartments); err != nil {
		fail(c, err)
		return
	}
	var in namedBody
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	fields := map[string]any{}
	if v := strings.TrimSpace(in.Name); v != "" {
		fields["name"] = v
	}
	if in.Description != "" {
		fields["description"] = strings.TrimSpace(in.Description)
	}
	if len(fields) == 0 {
		fail(c, apperr.Invalid("name", "nothing to update"))
		return
	}
	ctx := c.Request.Context()
	if err := ac.Repo.UpdateDepartment(ctx, c.Param("id"), fields); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = apperr.NotFound("department")
		}
		fail(c, err)
		return
	}
	d, err := ac.Repo.FindDepartmentByID(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// DELETE /api/admin/departments/:id 仍被物品/负责人引用时拒绝
func (ac *AdminController) DeleteDepartment(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageDepartments); err != nil {
		fail(c, err)
		return
	}
	if err := ac.Repo.DeleteDepartment(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = apperr.NotFound("department")
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// GET /api/categories 公开
func (ac *AdminController) ListCategories(c *gin.Context) {
	cs, err := ac.Repo.ListCategories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"categories": cs})
}

// POST /api/admin/categories
func (ac *AdminController) CreateCategory(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageDepartments); err != nil {
		fail(c, err)
		return
	}
	var in namedBody
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		fail(c, apperr.Invalid("name", "is required"))
		return
	}
	cat := &models.Category{Name: strings.TrimSpace(in.Name), Description: strings.TrimSpace(in.Description)}
	if err := ac.Repo.CreateCategory(c.Request.Context(), cat); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

// DELETE /api/admin/categories/:id
func (ac *AdminController) DeleteCategory(c *gin.Context) {
	if err := authz.Check(actor(c), authz.OpManageDepartments); err != nil {
		fail(c, err)
		return
	}
	if err := ac.Repo.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = apperr.NotFound("category")
		}
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/admin/reconcile
func (ac *AdminController) Reconcile(c *gin.Context) {
	res, err := ac.WF.ReconcileItemStatuses(c.Request.Context(), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/admin/anomalies
func (ac *AdminController) Anomalies(c *gin.Context) {
	list, err := ac.WF.Anomalies(c.Request.Context(), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": list})
}
