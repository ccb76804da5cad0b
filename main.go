package main

import (
	"log"

	"Gin_postgres_redis_loan_approval/app"
	"Gin_postgres_redis_loan_approval/config"
	"Gin_postgres_redis_loan_approval/routes"
)

func main() {
	config.LoadEnv()
	application := app.MustNew()
	defer application.Close()

	r := application.Router
	routes.RegisterRoutes(r, application)

	port := application.Config.Port
	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
