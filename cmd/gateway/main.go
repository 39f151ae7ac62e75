// 認証ゲートウェイのエントリポイント。
// 共有パスワードによるログイン、セッショントークンの発行、
// レコードストアへのアクセス制御を担当する。
package main

import (
	"context"
	"flag"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nao1215/opsdash/internal/config"
	"github.com/nao1215/opsdash/internal/gateway"
	"github.com/nao1215/opsdash/internal/records"
	"github.com/nao1215/opsdash/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "YAML設定ファイルのパス（未指定時は "+config.EnvConfigFile+"）")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}

	logger := logging.New("gateway", logging.Format(cfg.LogFormat), cfg.LogLevel)
	if cfg.GeneratedSecret {
		logger.Warn().Msg("session_secretが未設定のため署名鍵を生成しました。再起動すると発行済みのセッションは無効になります")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := records.Open(ctx, cfg.DatabaseURL, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("レコードストアの初期化に失敗")
	}
	defer store.Close()

	server, err := gateway.NewServer(gateway.Options{
		Port:           cfg.Port,
		Digest:         cfg.Digest,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		SessionSecret:  []byte(cfg.SessionSecret),
		SessionTTL:     cfg.SessionTTL,
		LoginRateLimit: cfg.LoginRateLimit,
		Store:          store,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Gatewayサーバーの初期化に失敗")
	}

	logger.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Strs("trusted_proxies", cfg.TrustedProxies).
		Dur("session_ttl", cfg.SessionTTL).
		Int("login_rate_limit", cfg.LoginRateLimit).
		Msg("Gatewayサービスを起動します")
	if err := server.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Gatewayサービスの起動に失敗")
	}
}
