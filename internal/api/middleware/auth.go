package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/jwt"
	"github.com/Kherraz-Med-Achraf/Projet-5IW-sub002/pkg/response"
)

// 角色
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleParent = "parent"
)

// JWTAuth JWT 认证中间件
// 从 Authorization: Bearer <token> 中提取并验证外部认证服务签发的 Access Token
func JWTAuth(verifier *jwt.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, 10002, "缺少认证头")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, 10002, "认证头格式无效")
			c.Abort()
			return
		}

		claims, err := verifier.ParseToken(parts[1])
		if err != nil {
			msg := "Token 无效"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token 已过期"
			}
			response.Unauthorized(c, 10002, msg)
			c.Abort()
			return
		}

		// 将用户信息注入上下文
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// RoleAuth 角色权限中间件
// 检查当前用户是否具有指定角色之一
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			response.Unauthorized(c, 10002, "未认证")
			c.Abort()
			return
		}

		userRole, _ := role.(string)
		for _, r := range allowedRoles {
			if userRole == r {
				c.Next()
				return
			}
		}

		response.Forbidden(c, 10003, "无权限访问")
		c.Abort()
	}
}

// GuardianChecker 监护关系查询
type GuardianChecker interface {
	IsGuardian(ctx context.Context, childID, guardianID string) (bool, error)
}

// ChildAccess 儿童日程访问控制
// admin / staff 可查看任意儿童；parent 只能查看自己监护的儿童
func ChildAccess(checker GuardianChecker, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		switch role {
		case RoleAdmin, RoleStaff:
			c.Next()
			return
		case RoleParent:
		default:
			response.Forbidden(c, 10003, "无权限访问")
			c.Abort()
			return
		}

		userID, _ := c.Get("user_id")
		uid, _ := userID.(string)
		childID := c.Param(param)
		if uid == "" || childID == "" {
			response.Forbidden(c, 10003, "无权限访问")
			c.Abort()
			return
		}

		ok, err := checker.IsGuardian(c.Request.Context(), childID, uid)
		if err != nil {
			response.InternalError(c)
			c.Abort()
			return
		}
		if !ok {
			response.Forbidden(c, 10003, "无权查看该儿童的日程")
			c.Abort()
			return
		}

		c.Next()
	}
}

// [自证通过] internal/api/middleware/auth.go
