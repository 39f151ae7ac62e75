package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	newRouter := func(captured *string) *gin.Engine {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			*captured = GetRequestID(c)
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("ヘッダーが無い場合はUUIDを生成すること", func(t *testing.T) {
		t.Parallel()

		var captured string
		router := newRouter(&captured)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		if _, err := uuid.Parse(captured); err != nil {
			t.Errorf("リクエストIDがUUIDではない: %q", captured)
		}
		if got := w.Header().Get(RequestIDHeader); got != captured {
			t.Errorf("%s = %q, want %q", RequestIDHeader, got, captured)
		}
	})

	t.Run("クライアントが指定したリクエストIDを引き継ぐこと", func(t *testing.T) {
		t.Parallel()

		var captured string
		router := newRouter(&captured)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "client-req-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if captured != "client-req-1" {
			t.Errorf("GetRequestID() = %q, want %q", captured, "client-req-1")
		}
	})

	t.Run("長すぎるリクエストIDは置き換えること", func(t *testing.T) {
		t.Parallel()

		var captured string
		router := newRouter(&captured)
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("a", maxRequestIDLength+1))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if _, err := uuid.Parse(captured); err != nil {
			t.Errorf("リクエストIDが置き換えられていない: %q", captured)
		}
	})

	t.Run("ミドルウェア未適用の場合は空文字列を返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetRequestID(c); got != "" {
			t.Errorf("GetRequestID() = %q, want empty string", got)
		}
	})
}
