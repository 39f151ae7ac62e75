package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS は許可リストに基づいてクロスオリジンリクエストを制御するGinミドルウェアを返す。
//
// 許可リストが空の場合は開発モードとして全オリジンを許可する。
// 許可リストが設定されている場合、Originヘッダーが一致しないリクエストは
// 後続のハンドラ（パスワード照合を含む）に到達する前に403で拒否する。
// Originヘッダーを持たないリクエストはクロスオリジンではないため通過させる。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originsSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "" {
			continue
		}
		originsSet[o] = struct{}{}
	}
	allowAny := len(originsSet) == 0

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		if _, ok := originsSet[origin]; !ok && !allowAny {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "このオリジンからのアクセスは許可されていません",
			})
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
		c.Header("Access-Control-Max-Age", "86400")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
