package controllers

import (
	"net/http"

	"Gin_postgres_redis_loan_approval/app"

	"github.com/gin-gonic/gin"
)

type CartController struct{ *Srv }

func NewCartController(s *Srv) *CartController { return &CartController{Srv: s} }

// GET /api/cart
func (cc *CartController) List(c *gin.Context) {
	lines, err := cc.Cart.List(c.Request.Context(), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": lines})
}

// POST /api/cart/items {itemId, quantity}
func (cc *CartController) Add(c *gin.Context) {
	var in struct {
		ItemID   string `json:"itemId" binding:"required"`
		Quantity int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	lines, err := cc.Cart.Add(c.Request.Context(), actor(c), in.ItemID, in.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": lines})
}

// PUT /api/cart/items/:itemId {quantity}; 0 删除
func (cc *CartController) Set(c *gin.Context) {
	var in struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badBody(c, err)
		return
	}
	lines, err := cc.Cart.Set(c.Request.Context(), actor(c), c.Param("itemId"), in.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": lines})
}

// DELETE /api/cart/items/:itemId
func (cc *CartController) Remove(c *gin.Context) {
	lines, err := cc.Cart.Remove(c.Request.Context(), actor(c), c.Param("itemId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": lines})
}

// DELETE /api/cart
func (cc *CartController) Clear(c *gin.Context) {
	if err := cc.Cart.Clear(c.Request.Context(), actor(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/cart/checkout: same body as POST /api/requests; quantities
// come from the cart.
func (cc *CartController) Checkout(c *gin.Context) {
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badBody(c, err)
		return
	}
	in, err := body.input()
	if err != nil {
		fail(c, err)
		return
	}
	br, err := cc.Cart.Checkout(c.Request.Context(), actor(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, br)
}
