package routes

import (
	"net/http"
	"time"

	"Gin_postgres_redis_loan_approval/app"
	"Gin_postgres_redis_loan_approval/controllers"
	"Gin_postgres_redis_loan_approval/workflow"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	// 控制器与依赖
	s := controllers.GetSrv(a)
	authCtl := controllers.NewAuthController(s)
	uc := controllers.GetUserController(s)
	itemCtl := controllers.NewItemController(s)
	reqCtl := controllers.NewRequestController(s)
	cartCtl := controllers.NewCartController(s)
	notifCtl := controllers.NewNotificationController(s)
	adminCtl := controllers.NewAdminController(s)

	// 复用的中间件
	authMW := app.AuthRequired(s.GetAppSess(), s.Repo, a.Config)
	adminMW := app.AdminOnly()
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute)

	r.GET("/healthz", func(c *app.Ctx) { c.JSON(http.StatusOK, app.H{"ok": true}) })

	// ------------------------------
	// 登录（IdP token 换会话）
	// ------------------------------
	auth := r.Group("/auth")
	{
		auth.POST("/session", authCtl.CreateSession)
	}
	authed := auth.Group("", authMW, seenMW)
	{
		authed.GET("/whoami", authCtl.WhoAmI)
		authed.POST("/logout", authCtl.Logout)
	}

	// ------------------------------
	// 公开：库存看板
	// ------------------------------
	pub := r.Group("/api")
	{
		pub.GET("/inventory", itemCtl.ListInventory)
		pub.GET("/inventory/:id", itemCtl.GetInventoryItem)
		pub.GET("/departments", adminCtl.ListDepartments)
		pub.GET("/categories", adminCtl.ListCategories)
	}

	api := r.Group("/api", authMW, seenMW)

	// 物品管理（部门负责人 / 管理员）
	items := api.Group("/items")
	{
		items.POST("", itemCtl.CreateItem)
		items.PUT("/:id", itemCtl.UpdateItem)
		items.DELETE("/:id", itemCtl.DeleteItem)
	}

	// 借用车
	cart := api.Group("/cart")
	{
		cart.GET("", cartCtl.List)
		cart.DELETE("", cartCtl.Clear)
		cart.POST("/items", cartCtl.Add)
		cart.PUT("/items/:itemId", cartCtl.Set)
		cart.DELETE("/items/:itemId", cartCtl.Remove)
		cart.POST("/checkout", cartCtl.Checkout)
	}

	// 借用申请与审批
	reqs := api.Group("/requests")
	{
		reqs.POST("", reqCtl.Submit)
		reqs.GET("", reqCtl.List) // ?scope=&status=
		reqs.GET("/:id", reqCtl.Get)
		reqs.GET("/:id/history", reqCtl.History)
		reqs.GET("/:id/letter", reqCtl.Letter)
		for _, ev := range []workflow.Event{
			workflow.EventApprove, workflow.EventEscalate, workflow.EventReject,
			workflow.EventStart, workflow.EventReturn, workflow.EventCancel,
		} {
			reqs.POST("/:id/"+string(ev), reqCtl.Fire(ev))
		}
	}
	api.GET("/dashboard", reqCtl.Dashboard)

	notes := api.Group("/notifications")
	{
		notes.GET("", notifCtl.List)
		notes.POST("/:id/read", notifCtl.MarkRead)
	}

	// ------------------------------
	// 管理（仅管理员）
	// ------------------------------
	admin := api.Group("/admin", adminMW)
	{
		admin.GET("/users", uc.ListUsers) // ?q=&page=&size=
		admin.GET("/users/:id", uc.GetUser)
		admin.DELETE("/users/:id", uc.DeleteUser)
		admin.GET("/users/:id/roles", uc.ListRoles)
		admin.POST("/users/:id/roles", uc.AssignRole)
		admin.DELETE("/roles/:roleId", uc.RevokeRole)

		admin.POST("/departments", adminCtl.CreateDepartment)
		admin.PUT("/departments/:id", adminCtl.UpdateDepartment)
		admin.DELETE("/departments/:id", adminCtl.DeleteDepartment)
		admin.POST("/categories", adminCtl.CreateCategory)
		admin.DELETE("/categories/:id", adminCtl.DeleteCategory)

		admin.POST("/reconcile", adminCtl.Reconcile)
		admin.GET("/anomalies", adminCtl.Anomalies)
	}
}
