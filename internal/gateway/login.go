package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/opsdash/pkg/middleware"
)

// loginRequest はPOST /loginのリクエストボディ。
// passwordの欠落と空文字を区別するためポインタで受け取る。
type loginRequest struct {
	Password *string `json:"password"`
}

// handleLogin は共有パスワードを照合し、一致した場合にセッショントークンを発行するハンドラを返す。
//
// リクエストごとに独立しており、サーバー側にセッション状態は持たない。
// 失敗した照合はクライアントIPごとに数え、LoginRateLimitミドルウェアが上限を適用する。
// パスワードやダイジェストはログに出力しない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "パスワードが必要です"})
			return
		}
		if req.Password == nil || *req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "パスワードが必要です"})
			return
		}

		clientIP := c.ClientIP()
		if !s.hasher.Verify(*req.Password, s.digest) {
			s.limiter.RecordFailure(clientIP)
			s.logger.Warn().
				Str("client_ip", clientIP).
				Str("request_id", middleware.GetRequestID(c)).
				Msg("ログインに失敗")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "パスワードが正しくありません"})
			return
		}

		s.limiter.Reset(clientIP)

		session, err := middleware.IssueSessionToken(s.sessionSecret, s.sessionTTL, s.now())
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("request_id", middleware.GetRequestID(c)).
				Msg("セッショントークンの発行に失敗")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークン生成に失敗しました"})
			return
		}

		s.logger.Info().
			Str("client_ip", clientIP).
			Str("request_id", middleware.GetRequestID(c)).
			Time("expires_at", session.ExpiresAt).
			Msg("ログインに成功")

		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"token":      session.Token,
			"expires_at": session.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}

// handleSession はセッショントークンの有効期限を返すハンドラを返す。
// SessionAuthミドルウェアの後に登録する。
func (s *Server) handleSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.GetSession(c)
		if !ok || claims.ExpiresAt == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンが無効です"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"authenticated": true,
			"expires_at":    claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
		})
	}
}
