package app

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// useCORS: origin may be a comma separated list.
func useCORS(r *gin.Engine, origin string) {
	var origins []string
	for _, o := range strings.Split(origin, ",") {
		if s := strings.TrimRight(strings.TrimSpace(o), "/"); s != "" {
			origins = append(origins, s)
		}
	}
	if len(origins) == 0 {
		return
	}
	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	r.Use(cors.New(cfg))
}
