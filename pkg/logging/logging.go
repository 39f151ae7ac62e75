// Package logging はzerologベースの構造化ロガーを初期化する。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Format はログの出力形式。
type Format string

const (
	// FormatConsole は人間が読みやすいコンソール形式。
	FormatConsole Format = "console"
	// FormatJSON は1行1イベントのJSON形式。
	FormatJSON Format = "json"
)

// New はサービス名を付与したロガーを生成し、パッケージグローバルのlog.Loggerにも設定する。
// levelが解釈できない場合はinfoレベルを使う。
func New(service string, format Format, level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, service, format, level)
}

// NewWithWriter は出力先を指定してロガーを生成する。
func NewWithWriter(w io.Writer, service string, format Format, level string) zerolog.Logger {
	out := w
	if format != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", service).Logger()
	log.Logger = logger
	return logger
}
