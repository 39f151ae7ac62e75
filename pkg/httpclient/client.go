package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrLoginFailed はログインに失敗したことを表す。
	// パスワードの誤りと通信エラーを区別しない。
	ErrLoginFailed = errors.New("ログインに失敗しました")
	// ErrNotAuthenticated は有効なセッションが無いことを表す。
	ErrNotAuthenticated = errors.New("ログインしていません")
)

// State はクライアントの認証状態。
type State int

const (
	// StateUnauthenticated は未ログイン。
	StateUnauthenticated State = iota
	// StatePending はログイン要求の応答待ち。
	StatePending
	// StateAuthenticated はログイン済み。
	StateAuthenticated
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// StatusError はゲートウェイが2xx以外を返した場合のエラー。
type StatusError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Message はレスポンスのerrorフィールド。
	Message string
}

// Error はエラーメッセージを返す。
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTPエラー: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("HTTPエラー: status=%d, error=%s", e.StatusCode, e.Message)
}

// Client はゲートウェイ用のHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL はゲートウェイのベースURL。
	baseURL string
	// store はセッションの保存先。
	store SessionStore
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time

	mu sync.Mutex
	// pending はログイン要求の応答待ちかどうか。
	pending bool
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithSessionStore はセッションの保存先を指定する。デフォルトはMemoryStore。
func WithSessionStore(store SessionStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithHTTPClient は内部で使用するHTTPクライアントを指定する。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New は新しいゲートウェイクライアントを生成する。
// baseURLにはゲートウェイのベースURL（例: "http://localhost:3000"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   NewMemoryStore(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State は現在の認証状態を返す。
// 保存されたセッションが有効期限内であればStateAuthenticatedとなる。
func (c *Client) State() State {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending {
		return StatePending
	}

	if _, err := c.Session(); err != nil {
		return StateUnauthenticated
	}
	return StateAuthenticated
}

// Session は有効なセッションを返す。無い場合や期限切れの場合はErrNotAuthenticatedを返す。
func (c *Client) Session() (Session, error) {
	session, ok, err := c.store.Load()
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if !ok || !session.Valid(c.now()) {
		return Session{}, ErrNotAuthenticated
	}
	return session, nil
}

// loginResponse はPOST /loginの成功レスポンス。
type loginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login は共有パスワードでログインし、成功した場合にセッションを保存する。
// 失敗した場合は保存済みのセッションを破棄し、ErrLoginFailedを返す。
// パスワードの誤りと通信エラーは同じエラーになる。入力不備とレート制限のみゲートウェイのメッセージを付与する。
func (c *Client) Login(ctx context.Context, password string) error {
	c.mu.Lock()
	c.pending = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
	}()

	var resp loginResponse
	err := c.doJSON(ctx, http.MethodPost, "/login", "", map[string]string{"password": password}, &resp)
	if err == nil && (!resp.Success || resp.Token == "") {
		err = errors.New("レスポンスにトークンが含まれていません")
	}
	if err != nil {
		_ = c.store.Clear()
		var se *StatusError
		if errors.As(err, &se) && se.Message != "" &&
			(se.StatusCode == http.StatusBadRequest || se.StatusCode == http.StatusTooManyRequests) {
			return fmt.Errorf("%w: %s", ErrLoginFailed, se.Message)
		}
		return ErrLoginFailed
	}

	if err := c.store.Save(Session{Token: resp.Token, ExpiresAt: resp.ExpiresAt}); err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return nil
}

// Logout は保存されたセッションを破棄する。ゲートウェイには通知しない。
func (c *Client) Logout() error {
	return c.store.Clear()
}

// sessionResponse はGET /sessionのレスポンス。
type sessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Verify は保存されたセッションがゲートウェイで有効かを確認する。
// ゲートウェイが拒否した場合はセッションを破棄してErrNotAuthenticatedを返す。
func (c *Client) Verify(ctx context.Context) (Session, error) {
	session, err := c.Session()
	if err != nil {
		return Session{}, err
	}

	var resp sessionResponse
	if err := c.authorized(ctx, http.MethodGet, "/session", session, nil, &resp); err != nil {
		return Session{}, err
	}
	if !resp.Authenticated {
		_ = c.store.Clear()
		return Session{}, ErrNotAuthenticated
	}
	return session, nil
}

// authorized はセッショントークンを付与してリクエストを送信する。
// 401が返った場合はセッションを破棄する。
func (c *Client) authorized(ctx context.Context, method, path string, session Session, body any, result any) error {
	err := c.doJSON(ctx, method, path, session.Token, body, result)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
		_ = c.store.Clear()
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return err
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
// tokenが空でない場合はBearerトークンとして送信する。
func (c *Client) doJSON(ctx context.Context, method, path, token string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(respBody, &errBody)
		return &StatusError{StatusCode: resp.StatusCode, Message: errBody.Error}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}
