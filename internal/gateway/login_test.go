package gateway

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nao1215/opsdash/pkg/middleware"
)

// TestHandleLogin はログインハンドラのテスト。
func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("正しいパスワードの場合にトークンを発行する", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil)
		w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := decodeBody(t, w)
		if result["success"] != true {
			t.Errorf("success: got %v, want true", result["success"])
		}

		token, _ := result["token"].(string)
		claims, err := middleware.ParseSessionToken(testSessionSecret, token)
		if err != nil {
			t.Fatalf("発行されたトークンの検証に失敗: %v", err)
		}

		expiresAt, err := time.Parse(time.RFC3339, fmt.Sprint(result["expires_at"]))
		if err != nil {
			t.Fatalf("expires_atのパースに失敗: %v", err)
		}
		if !expiresAt.Equal(claims.ExpiresAt.Time) {
			t.Errorf("expires_at: got %v, want %v", expiresAt, claims.ExpiresAt.Time)
		}
	})

	t.Run("誤ったパスワードの場合に401を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil)
		for _, candidate := range []string{"wrong", testPassword + " ", strings.ToUpper(testPassword), testPassword[:len(testPassword)-1]} {
			w := doRequest(s, http.MethodPost, "/login", fmt.Sprintf(`{"password":%q}`, candidate), nil)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("%q: ステータスコード: got %d, want %d", candidate, w.Code, http.StatusUnauthorized)
			}
			result := decodeBody(t, w)
			if result["error"] == nil {
				t.Errorf("%q: errorフィールドがない", candidate)
			}
			if _, ok := result["token"]; ok {
				t.Errorf("%q: 失敗時にtokenが返された", candidate)
			}
		}
	})

	t.Run("パスワードが無い場合や不正な場合に400を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil)
		bodies := []string{
			`{}`,
			`{"password":""}`,
			`{"password":null}`,
			`{"password":12345}`,
			`{"password":["a"]}`,
			`not json`,
			``,
		}
		for _, body := range bodies {
			w := doRequest(s, http.MethodPost, "/login", body, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("%q: ステータスコード: got %d, want %d", body, w.Code, http.StatusBadRequest)
			}
		}
	})

	t.Run("同じ入力に対して結果が変わらない", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil)
		for i := 0; i < 3; i++ {
			w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`, nil)
			if w.Code != http.StatusOK {
				t.Errorf("%d回目: ステータスコード: got %d, want %d", i+1, w.Code, http.StatusOK)
			}
		}
	})

	t.Run("並行リクエストの結果が互いに影響しない", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, func(o *Options) { o.LoginRateLimit = 0 })

		const n = 20
		codes := make([]int, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				candidate := testPassword
				if i%2 == 1 {
					candidate = "wrong-" + fmt.Sprint(i)
				}
				w := doRequest(s, http.MethodPost, "/login", fmt.Sprintf(`{"password":%q}`, candidate), nil)
				codes[i] = w.Code
			}(i)
		}
		wg.Wait()

		for i, code := range codes {
			want := http.StatusOK
			if i%2 == 1 {
				want = http.StatusUnauthorized
			}
			if code != want {
				t.Errorf("リクエスト%d: ステータスコード: got %d, want %d", i, code, want)
			}
		}
	})

	t.Run("ログにパスワードとダイジェストを出力しない", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		var mu sync.Mutex
		logger := zerolog.New(&lockedWriter{mu: &mu, w: &buf})
		digest := testDigest(t)
		s := newTestServer(t, func(o *Options) {
			o.Logger = logger
			o.Digest = digest
		})

		doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`, nil)
		doRequest(s, http.MethodPost, "/login", `{"password":"leaked-candidate"}`, nil)

		mu.Lock()
		out := buf.String()
		mu.Unlock()
		if out == "" {
			t.Fatal("ログが出力されていない")
		}
		for _, secret := range []string{testPassword, "leaked-candidate", digest.Encoded()} {
			if strings.Contains(out, secret) {
				t.Errorf("ログに秘密情報が含まれている: %q", secret)
			}
		}
	})
}

// lockedWriter はテストでログ出力を安全に読み出すためのWriter。
type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

// Write はロックを取得して書き込む。
func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// TestLoginOrigin はオリジン許可リストとログインの組み合わせをテストする。
func TestLoginOrigin(t *testing.T) {
	t.Parallel()

	allowed := "https://dash.example.com"
	withAllowlist := func(o *Options) { o.AllowedOrigins = []string{allowed} }

	t.Run("許可されていないオリジンは正しいパスワードでも403を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, withAllowlist)
		w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`,
			map[string]string{"Origin": "https://evil.example.com"})

		if w.Code != http.StatusForbidden {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
		result := decodeBody(t, w)
		if _, ok := result["token"]; ok {
			t.Error("拒否されたオリジンにtokenが返された")
		}
		if result["error"] == nil {
			t.Error("errorフィールドがない")
		}
	})

	t.Run("許可されていないオリジンからの失敗はレート制限に数えない", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, func(o *Options) {
			withAllowlist(o)
			o.LoginRateLimit = 1
		})
		for i := 0; i < 3; i++ {
			doRequest(s, http.MethodPost, "/login", `{"password":"wrong"}`,
				map[string]string{"Origin": "https://evil.example.com"})
		}

		w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`,
			map[string]string{"Origin": allowed})
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("許可されたオリジンにはCORSヘッダーを付与する", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, withAllowlist)
		w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`,
			map[string]string{"Origin": allowed})

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != allowed {
			t.Errorf("Access-Control-Allow-Origin: got %q, want %q", got, allowed)
		}
	})

	t.Run("許可されたオリジンからのプリフライトに204を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, withAllowlist)
		w := doRequest(s, http.MethodOptions, "/login", "", map[string]string{
			"Origin":                        allowed,
			"Access-Control-Request-Method": http.MethodPost,
		})

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != allowed {
			t.Errorf("Access-Control-Allow-Origin: got %q, want %q", got, allowed)
		}
	})

	t.Run("Originヘッダーが無いリクエストは通過する", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, withAllowlist)
		w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`, nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestLoginRateLimit はログイン失敗回数の制限をテストする。
func TestLoginRateLimit(t *testing.T) {
	t.Parallel()

	t.Run("上限に達したクライアントは正しいパスワードでも429を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, func(o *Options) { o.LoginRateLimit = 2 })
		for i := 0; i < 2; i++ {
			w := doRequest(s, http.MethodPost, "/login", `{"password":"wrong"}`, nil)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("%d回目: ステータスコード: got %d, want %d", i+1, w.Code, http.StatusUnauthorized)
			}
		}

		w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`, nil)
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusTooManyRequests)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Error("Retry-Afterヘッダーがない")
		}
	})

	t.Run("X-Forwarded-Forを変えても失敗回数は接続元アドレスで数える", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, func(o *Options) { o.LoginRateLimit = 2 })
		codes := make([]int, 0, 5)
		for i := 0; i < 5; i++ {
			headers := map[string]string{"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i)}
			w := doRequest(s, http.MethodPost, "/login", `{"password":"wrong"}`, headers)
			codes = append(codes, w.Code)
		}
		for i, want := range []int{
			http.StatusUnauthorized,
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
			http.StatusTooManyRequests,
			http.StatusTooManyRequests,
		} {
			if codes[i] != want {
				t.Errorf("%d回目: ステータスコード: got %d, want %d", i+1, codes[i], want)
			}
		}
	})

	t.Run("信頼するプロキシ経由ではX-Forwarded-ForのIPごとに数える", func(t *testing.T) {
		t.Parallel()

		// httptest.NewRequestの接続元アドレスは192.0.2.1
		s := newTestServer(t, func(o *Options) {
			o.LoginRateLimit = 1
			o.TrustedProxies = []string{"192.0.2.1"}
		})
		first := map[string]string{"X-Forwarded-For": "203.0.113.10"}
		second := map[string]string{"X-Forwarded-For": "203.0.113.20"}

		if w := doRequest(s, http.MethodPost, "/login", `{"password":"wrong"}`, first); w.Code != http.StatusUnauthorized {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if w := doRequest(s, http.MethodPost, "/login", `{"password":"wrong"}`, first); w.Code != http.StatusTooManyRequests {
			t.Errorf("同じクライアント: ステータスコード: got %d, want %d", w.Code, http.StatusTooManyRequests)
		}
		if w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`, second); w.Code != http.StatusOK {
			t.Errorf("別のクライアント: ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("成功すると失敗回数がリセットされる", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, func(o *Options) { o.LoginRateLimit = 2 })
		steps := []struct {
			password string
			want     int
		}{
			{password: "wrong", want: http.StatusUnauthorized},
			{password: testPassword, want: http.StatusOK},
			{password: "wrong", want: http.StatusUnauthorized},
			{password: testPassword, want: http.StatusOK},
		}
		for i, step := range steps {
			w := doRequest(s, http.MethodPost, "/login", fmt.Sprintf(`{"password":%q}`, step.password), nil)
			if w.Code != step.want {
				t.Errorf("%d回目: ステータスコード: got %d, want %d", i+1, w.Code, step.want)
			}
		}
	})

	t.Run("不正なリクエストは失敗回数に数えない", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, func(o *Options) { o.LoginRateLimit = 1 })
		for i := 0; i < 3; i++ {
			doRequest(s, http.MethodPost, "/login", `{}`, nil)
		}

		w := doRequest(s, http.MethodPost, "/login", `{"password":"`+testPassword+`"}`, nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestHandleSession はセッション確認ハンドラのテスト。
func TestHandleSession(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンで200を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil)
		token := loginToken(t, s)

		w := doRequest(s, http.MethodGet, "/session", "", bearer(token))
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
		result := decodeBody(t, w)
		if result["authenticated"] != true {
			t.Errorf("authenticated: got %v, want true", result["authenticated"])
		}
		if result["expires_at"] == nil {
			t.Error("expires_atフィールドがない")
		}
	})

	t.Run("トークンが無い場合に401を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil)
		w := doRequest(s, http.MethodGet, "/session", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("別の署名鍵で発行されたトークンは401を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, nil)
		other, err := middleware.IssueSessionToken([]byte("another-secret-another-secret-00"), time.Hour, time.Now())
		if err != nil {
			t.Fatalf("トークン生成に失敗: %v", err)
		}

		w := doRequest(s, http.MethodGet, "/session", "", bearer(other.Token))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("有効期限切れのトークンは401を返す", func(t *testing.T) {
		t.Parallel()

		s := newTestServer(t, func(o *Options) { o.SessionTTL = time.Hour })
		s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token := loginToken(t, s)

		w := doRequest(s, http.MethodGet, "/session", "", bearer(token))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}
