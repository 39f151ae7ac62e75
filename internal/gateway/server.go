package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nao1215/opsdash/internal/records"
	"github.com/nao1215/opsdash/pkg/middleware"
	"github.com/nao1215/opsdash/pkg/password"
)

// RecordStore はゲートウェイが利用するレコードストアの操作。
type RecordStore interface {
	Create(ctx context.Context, collection string, input records.Record) (records.Record, error)
	Get(ctx context.Context, collection, id string) (records.Record, error)
	List(ctx context.Context, collection string, opts records.ListOptions) ([]records.Record, error)
	Update(ctx context.Context, collection, id string, input records.Record) (records.Record, error)
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
}

// Options はGatewayサーバーの構成。
type Options struct {
	// Port はリッスンポート。
	Port string
	// Digest は共有パスワードのダイジェスト。必須。
	Digest password.Digest
	// Hasher はパスワード照合に使う実装。nilの場合はbcrypt。
	Hasher password.Hasher
	// AllowedOrigins はアクセスを許可するオリジン。空の場合は全て許可する。
	AllowedOrigins []string
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのIPまたはCIDR。
	// 空の場合はどのヘッダーも信頼せず、接続元アドレスをクライアントIPとする。
	TrustedProxies []string
	// SessionSecret はセッショントークンの署名鍵。必須。
	SessionSecret []byte
	// SessionTTL はセッショントークンの有効期間。0以下の場合はデフォルト値。
	SessionTTL time.Duration
	// LoginRateLimit はIPごとに1分あたり許容するログイン失敗回数。0以下で無効。
	LoginRateLimit int
	// Store はレコードストア。nilの場合は /api/v1 を公開しない。
	Store RecordStore
	// Logger はリクエストログとアプリケーションログの出力先。
	Logger zerolog.Logger
}

// Server はGatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// hasher はパスワード照合の実装。
	hasher password.Hasher
	// digest は共有パスワードのダイジェスト。起動後は変更しない。
	digest password.Digest
	// sessionSecret はセッショントークンの署名鍵。
	sessionSecret []byte
	// sessionTTL はセッショントークンの有効期間。
	sessionTTL time.Duration
	// limiter はログイン失敗回数の制限。
	limiter *middleware.AttemptLimiter
	// store はレコードストア。
	store RecordStore
	// logger はアプリケーションログの出力先。
	logger zerolog.Logger
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// NewServer は新しいGatewayサーバーを生成する。
func NewServer(opts Options) (*Server, error) {
	if opts.Digest.IsZero() {
		return nil, errors.New("パスワードダイジェストが設定されていません")
	}
	if len(opts.SessionSecret) == 0 {
		return nil, errors.New("セッション署名鍵が設定されていません")
	}

	hasher := opts.Hasher
	if hasher == nil {
		cost, err := opts.Digest.Cost()
		if err != nil {
			return nil, fmt.Errorf("ダイジェストのコスト取得に失敗: %w", err)
		}
		hasher = password.NewBcrypt(cost)
	}

	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = middleware.DefaultSessionTTL
	}

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted_proxiesが不正です: %w", err)
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(opts.Logger))
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(middleware.CORS(opts.AllowedOrigins))

	s := &Server{
		router:        router,
		port:          opts.Port,
		hasher:        hasher,
		digest:        opts.Digest,
		sessionSecret: opts.SessionSecret,
		sessionTTL:    ttl,
		limiter:       middleware.NewAttemptLimiter(opts.LoginRateLimit, middleware.DefaultAttemptWindow),
		store:         opts.Store,
		logger:        opts.Logger,
		now:           time.Now,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 認証不要
	s.router.POST("/login", middleware.LoginRateLimit(s.limiter), s.handleLogin())
	s.router.GET("/health", s.handleHealth())

	// セッショントークン必須
	authed := s.router.Group("")
	authed.Use(middleware.SessionAuth(s.sessionSecret))
	authed.GET("/session", s.handleSession())

	if s.store == nil {
		return
	}

	api := authed.Group("/api/v1")
	{
		api.GET("/collections", s.handleListCollections())
		api.GET("/:collection", s.handleListRecords())
		api.POST("/:collection", s.handleCreateRecord())
		api.GET("/:collection/:id", s.handleGetRecord())
		api.PATCH("/:collection/:id", s.handleUpdateRecord())
		api.PUT("/:collection/:id", s.handleUpdateRecord())
		api.DELETE("/:collection/:id", s.handleDeleteRecord())
	}
}

// handleHealth はヘルスチェックのハンドラを返す。
// レコードストアが設定されている場合は疎通も確認する。
func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := s.store.Ping(ctx); err != nil {
				s.logger.Error().Err(err).Msg("データベースの疎通確認に失敗")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "gateway"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	}
}
