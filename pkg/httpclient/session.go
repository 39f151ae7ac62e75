package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// sessionKey はセッションファイル内でセッションを格納するキー。
const sessionKey = "faction_auth"

// Session はログイン成功時に発行されたセッション。
type Session struct {
	// Token はゲートウェイが署名したセッショントークン。
	Token string `json:"token"`
	// ExpiresAt はトークンの有効期限。
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid はセッションがnow時点で有効かを返す。
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}

// SessionStore はセッションを永続化する。
type SessionStore interface {
	// Load は保存されたセッションを返す。保存されていない場合はfalseを返す。
	Load() (Session, bool, error)
	// Save はセッションを保存する。
	Save(session Session) error
	// Clear は保存されたセッションを削除する。
	Clear() error
}

// MemoryStore はプロセス内でのみセッションを保持するSessionStore。
type MemoryStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load は保持しているセッションを返す。
func (m *MemoryStore) Load() (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false, nil
	}
	return *m.session, true, nil
}

// Save はセッションを保持する。
func (m *MemoryStore) Save(session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = &session
	return nil
}

// Clear は保持しているセッションを破棄する。
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// FileStore はJSONファイルにセッションを保存するSessionStore。
// ファイルは {"faction_auth": {"token": ..., "expires_at": ...}} の形式で、
// 所有者のみ読み書きできる権限で作成する。
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore はpathにセッションを保存するFileStoreを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultSessionPath はユーザー設定ディレクトリ配下のセッションファイルのパスを返す。
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("設定ディレクトリの取得に失敗: %w", err)
	}
	return filepath.Join(dir, "opsdash", "session.json"), nil
}

// Path はセッションファイルのパスを返す。
func (f *FileStore) Path() string {
	return f.path
}

// Load はセッションファイルを読み込む。ファイルが無い場合はfalseを返す。
func (f *FileStore) Load() (Session, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("セッションファイルの読み込みに失敗: %w", err)
	}

	var doc map[string]*Session
	if err := json.Unmarshal(data, &doc); err != nil {
		return Session{}, false, fmt.Errorf("セッションファイルの形式が不正です: %w", err)
	}
	session, ok := doc[sessionKey]
	if !ok || session == nil {
		return Session{}, false, nil
	}
	return *session, true, nil
}

// Save はセッションファイルを書き込む。一時ファイルに書いてから置き換える。
func (f *FileStore) Save(session Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(map[string]Session{sessionKey: session}, "", "  ")
	if err != nil {
		return fmt.Errorf("セッションのシリアライズに失敗: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("セッションディレクトリの作成に失敗: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("セッションファイルの書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("セッションファイルの書き込みに失敗: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("セッションファイルの権限設定に失敗: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("セッションファイルの置き換えに失敗: %w", err)
	}
	return nil
}

// Clear はセッションファイルを削除する。ファイルが無い場合は何もしない。
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("セッションファイルの削除に失敗: %w", err)
	}
	return nil
}
