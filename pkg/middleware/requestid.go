package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader はリクエストIDを伝播するHTTPヘッダー。
const RequestIDHeader = "X-Request-Id"

// contextKeyRequestID はGinコンテキストにリクエストIDを格納するキー。
const contextKeyRequestID = "request_id"

// maxRequestIDLength はクライアントから受け付けるリクエストIDの最大長。
const maxRequestIDLength = 128

// RequestID はリクエストIDを付与するGinミドルウェアを返す。
// クライアントが X-Request-Id を指定した場合はそれを引き継ぎ、無ければUUIDを生成する。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}
		c.Set(contextKeyRequestID, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID はGinコンテキストからリクエストIDを取得する。
func GetRequestID(c *gin.Context) string {
	if id, ok := c.Get(contextKeyRequestID); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
