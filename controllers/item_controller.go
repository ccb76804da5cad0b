// controllers/item_controller.go
package controllers

import (
	"net/http"

	"Gin_postgres_redis_loan_approval/app"
	"Gin_postgres_redis_loan_approval/db"
	"Gin_postgres_redis_loan_approval/models"
	"Gin_postgres_redis_loan_approval/workflow"

	"github.com/gin-gonic/gin"
)

type ItemController struct{ *Srv }

func NewItemController(s *Srv) *ItemController { return &ItemController{Srv: s} }

// GET /api/inventory?q=&departmentId=&categoryId=&status= 公开，含可借数量
func (ic *ItemController) ListInventory(c *gin.Context) {
	f := db.ItemFilter{
		Q:            c.Query("q"),
		DepartmentID: c.Query("departmentId"),
		CategoryID:   c.Query("categoryId"),
		Status:       models.ItemStatus(c.Query("status")),
	}
	items, err := ic.WF.Inventory(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": items})
}

// GET /api/inventory/:id
func (ic *ItemController) GetInventoryItem(c *gin.Context) {
	it, err := ic.WF.InventoryItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// POST /api/items
func (ic *ItemController) CreateItem(c *gin.Context) {
	var in workflow.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	it, err := ic.WF.CreateItem(c.Request.Context(), actor(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

// PUT /api/items/:id 只更新提供的字段
func (ic *ItemController) UpdateItem(c *gin.Context) {
	var in workflow.ItemInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	it, err := ic.WF.UpdateItem(c.Request.Context(), actor(c), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// DELETE /api/items/:id
func (ic *ItemController) DeleteItem(c *gin.Context) {
	if err := ic.WF.DeleteItem(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
