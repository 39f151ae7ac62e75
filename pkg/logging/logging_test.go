package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

// TestNewWithWriter はロガーの出力形式とレベルを検証する。
func TestNewWithWriter(t *testing.T) {
	t.Run("JSON形式でサービス名が出力されること", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, "gateway", FormatJSON, "info")
		logger.Info().Msg("started")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("ログ出力のパースに失敗: %v", err)
		}
		if entry["service"] != "gateway" {
			t.Errorf("service = %v, want %q", entry["service"], "gateway")
		}
		if entry["message"] != "started" {
			t.Errorf("message = %v, want %q", entry["message"], "started")
		}
	})

	t.Run("指定レベル未満のログは出力されないこと", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, "gateway", FormatJSON, "warn")
		logger.Info().Msg("hidden")

		if buf.Len() != 0 {
			t.Errorf("infoログが出力された: %q", buf.String())
		}
	})

	t.Run("解釈できないレベルはinfoとして扱うこと", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(&buf, "gateway", FormatJSON, "verbose")
		logger.Debug().Msg("hidden")
		logger.Info().Msg("shown")

		if bytes.Contains(buf.Bytes(), []byte("hidden")) {
			t.Error("debugログが出力された")
		}
		if !bytes.Contains(buf.Bytes(), []byte("shown")) {
			t.Error("infoログが出力されていない")
		}
	})
}
