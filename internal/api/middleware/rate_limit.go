package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/redis"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/response"
)

// RateLimit 基于 Redis 滑动窗口的速率限制中间件
// 已认证请求按 user_id 计数，否则按客户端 IP
// rdb 为 nil 或 Redis 出错时降级放行
func RateLimit(rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || limit <= 0 {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if uid, ok := c.Get("user_id"); ok {
			if s, _ := uid.(string); s != "" {
				subject = s
			}
		}

		key := fmt.Sprintf("rate_limit:%s:%s", subject, c.FullPath())
		allowed, err := rdb.CheckRateLimit(c.Request.Context(), key, limit, window)
		if err != nil {
			logger.Warn("限流检查失败，降级放行", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			response.Error(c, http.StatusTooManyRequests, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}
