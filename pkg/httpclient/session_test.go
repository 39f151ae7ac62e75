package httpclient

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestFileStore はFileStoreを検証する。
func TestFileStore(t *testing.T) {
	t.Parallel()

	t.Run("ファイルが無い場合は未保存として扱うこと", func(t *testing.T) {
		t.Parallel()

		store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
		_, ok, err := store.Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if ok {
			t.Error("セッションが存在すると判定された")
		}
	})

	t.Run("保存したセッションをfaction_authキーで読み戻せること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", "session.json")
		store := NewFileStore(path)
		want := Session{Token: "tok", ExpiresAt: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}

		if err := store.Save(want); err != nil {
			t.Fatalf("Save()でエラーが発生: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ファイルの読み込みに失敗: %v", err)
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("ファイルのパースに失敗: %v", err)
		}
		if _, ok := doc["faction_auth"]; !ok {
			t.Errorf("faction_authキーがない: %s", data)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat()でエラーが発生: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("権限 = %o, want 600", perm)
		}

		got, ok, err := store.Load()
		if err != nil || !ok {
			t.Fatalf("Load() = %v, %v, %v", got, ok, err)
		}
		if got.Token != want.Token || !got.ExpiresAt.Equal(want.ExpiresAt) {
			t.Errorf("Load() = %+v, want %+v", got, want)
		}
	})

	t.Run("Clearでファイルが削除され、繰り返し呼べること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.json")
		store := NewFileStore(path)
		if err := store.Save(Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
			t.Fatalf("Save()でエラーが発生: %v", err)
		}

		for i := 0; i < 2; i++ {
			if err := store.Clear(); err != nil {
				t.Fatalf("Clear()でエラーが発生: %v", err)
			}
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("ファイルが残っている: %v", err)
		}
	})

	t.Run("壊れたファイルはエラーになること", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "session.json")
		if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
			t.Fatalf("ファイルの作成に失敗: %v", err)
		}
		if _, _, err := NewFileStore(path).Load(); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}

// TestSessionValid はSession.Validを検証する。
func TestSessionValid(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		session Session
		want    bool
	}{
		{name: "有効期限内", session: Session{Token: "tok", ExpiresAt: now.Add(time.Second)}, want: true},
		{name: "有効期限ちょうど", session: Session{Token: "tok", ExpiresAt: now}, want: false},
		{name: "期限切れ", session: Session{Token: "tok", ExpiresAt: now.Add(-time.Second)}, want: false},
		{name: "トークンが空", session: Session{ExpiresAt: now.Add(time.Hour)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.session.Valid(now); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
