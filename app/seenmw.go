// app/seenmw.go
package app

import (
	"time"

	"Gin_postgres_redis_loan_approval/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// TouchLastSeen writes last_seen_at at most once per throttle per user.
func TouchLastSeen(repo *db.Repo, rdb *redis.Client, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("userID")
		if uid == "" {
			c.Next()
			return
		}

		key := "loan:lastseen:" + uid
		if ok, _ := rdb.SetNX(c.Request.Context(), key, "1", throttle).Result(); ok {
			_ = repo.TouchUserSeen(c.Request.Context(), uid) // 忽略错误，不阻塞请求
		}
		c.Next()
	}
}
