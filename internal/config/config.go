// Package config はゲートウェイの設定を読み込む。
//
// 設定値は次の順に上書きされる。
//  1. 組み込みのデフォルト値
//  2. YAML設定ファイル（指定された場合のみ）
//  3. OPSDASH_ で始まる環境変数（OPSDASH_PASSWORD_HASH → password_hash）
//  4. PORT と DATABASE_URL 環境変数
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/nao1215/opsdash/pkg/logging"
	"github.com/nao1215/opsdash/pkg/password"
)

const (
	// EnvPrefix は設定用環境変数の接頭辞。
	EnvPrefix = "OPSDASH_"
	// EnvConfigFile は設定ファイルのパスを指定する環境変数。
	EnvConfigFile = EnvPrefix + "CONFIG_FILE"
	// minSessionSecretLength はセッション署名鍵の最小バイト数。
	minSessionSecretLength = 32
)

// Config はゲートウェイの設定。
type Config struct {
	// Port は待ち受けるポート番号。
	Port string `koanf:"port"`
	// PasswordHash は共有パスワードのbcryptダイジェスト。
	PasswordHash string `koanf:"password_hash"`
	// AllowedOrigins はブラウザからのアクセスを許可するオリジン。空の場合は全て許可する。
	AllowedOrigins []string `koanf:"allowed_origins"`
	// TrustedProxies はX-Forwarded-Forを信頼するプロキシのIPまたはCIDR。空の場合は信頼しない。
	TrustedProxies []string `koanf:"trusted_proxies"`
	// SessionSecret はセッショントークンの署名鍵。空の場合は起動ごとに生成する。
	SessionSecret string `koanf:"session_secret"`
	// SessionTTL はセッショントークンの有効期間。
	SessionTTL time.Duration `koanf:"session_ttl"`
	// DatabaseURL はレコードストアの接続先。postgres:// 以外はSQLiteのファイルパスとして扱う。
	DatabaseURL string `koanf:"database_url"`
	// LoginRateLimit は1分あたりに許容するIPごとのログイン失敗回数。0で無効。
	LoginRateLimit int `koanf:"login_rate_limit"`
	// LogLevel はログレベル（debug, info, warn, error）。
	LogLevel string `koanf:"log_level"`
	// LogFormat はログの出力形式（console, json）。
	LogFormat string `koanf:"log_format"`

	// Digest はPasswordHashを検証した結果。
	Digest password.Digest `koanf:"-"`
	// GeneratedSecret はSessionSecretを起動時に生成したかどうか。
	GeneratedSecret bool `koanf:"-"`
}

// Default はデフォルトの設定を返す。
func Default() Config {
	return Config{
		Port:           "3000",
		AllowedOrigins: []string{},
		TrustedProxies: []string{},
		SessionTTL:     12 * time.Hour,
		DatabaseURL:    "opsdash.db",
		LoginRateLimit: 10,
		LogLevel:       "info",
		LogFormat:      string(logging.FormatConsole),
	}
}

// Load は設定を読み込んで検証する。
// pathが空の場合は OPSDASH_CONFIG_FILE 環境変数のパスを使い、それも空なら設定ファイルは読まない。
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("デフォルト設定の読み込みに失敗: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("設定の変換に失敗: %w", err)
	}

	if port, found := os.LookupEnv("PORT"); found && port != "" {
		cfg.Port = port
	}
	if dsn, found := os.LookupEnv("DATABASE_URL"); found && dsn != "" {
		cfg.DatabaseURL = dsn
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize は設定値を正規化し、検証する。
func (c *Config) finalize() error {
	var errs []error

	c.Port = strings.TrimSpace(c.Port)
	if n, err := strconv.Atoi(c.Port); err != nil || n < 1 || n > 65535 {
		errs = append(errs, fmt.Errorf("port: 1から65535の数値を指定してください: %q", c.Port))
	}

	digest, err := password.ParseDigest(strings.TrimSpace(c.PasswordHash))
	if err != nil {
		errs = append(errs, fmt.Errorf("password_hash: %w", err))
	}
	c.Digest = digest

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins

	proxies := make([]string, 0, len(c.TrustedProxies))
	for _, p := range c.TrustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !isIPOrCIDR(p) {
			errs = append(errs, fmt.Errorf("trusted_proxies: IPアドレスまたはCIDRを指定してください: %q", p))
			continue
		}
		proxies = append(proxies, p)
	}
	c.TrustedProxies = proxies

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl: 正の期間を指定してください"))
	}
	if c.LoginRateLimit < 0 {
		errs = append(errs, errors.New("login_rate_limit: 0以上を指定してください"))
	}

	switch logging.Format(c.LogFormat) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format: console または json を指定してください: %q", c.LogFormat))
	}

	if c.SessionSecret == "" {
		secret, err := generateSecret()
		if err != nil {
			errs = append(errs, err)
		}
		c.SessionSecret = secret
		c.GeneratedSecret = true
	} else if len(c.SessionSecret) < minSessionSecretLength {
		errs = append(errs, fmt.Errorf("session_secret: %dバイト以上を指定してください", minSessionSecretLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("設定が不正です: %w", errors.Join(errs...))
	}
	return nil
}

// isIPOrCIDR はsがIPアドレスまたはCIDR表記かを判定する。
func isIPOrCIDR(s string) bool {
	if _, err := netip.ParseAddr(s); err == nil {
		return true
	}
	_, err := netip.ParsePrefix(s)
	return err == nil
}

// generateSecret はランダムな署名鍵を生成する。
func generateSecret() (string, error) {
	b := make([]byte, minSessionSecretLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("署名鍵の生成に失敗: %w", err)
	}
	return hex.EncodeToString(b), nil
}
