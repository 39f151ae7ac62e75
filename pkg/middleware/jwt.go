package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// SessionIssuer はセッショントークンの発行者名。
	SessionIssuer = "opsdash-gateway"
	// SessionSubject はセッショントークンのsubject。
	// ユーザーアカウントは存在せず、共有パスワード1つで1つのセッション種別を表す。
	SessionSubject = "dashboard"
	// DefaultSessionTTL はセッショントークンのデフォルト有効期間。
	DefaultSessionTTL = 12 * time.Hour
)

// contextKeySession はGinコンテキストにセッションクレームを格納するキー。
const contextKeySession = "session"

// ErrInvalidSession はセッショントークンが検証できない場合のエラー。
var ErrInvalidSession = errors.New("セッショントークンが無効です")

// SessionClaims はセッショントークンのクレーム。
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionToken は発行されたセッショントークンと有効期限。
type SessionToken struct {
	// Token は署名済みのJWT文字列。
	Token string
	// ExpiresAt はトークンの有効期限。
	ExpiresAt time.Time
}

// IssueSessionToken はパスワード照合に成功したクライアントへ渡すセッショントークンを生成する。
// ttlが0以下の場合はDefaultSessionTTLを使う。
func IssueSessionToken(secret []byte, ttl time.Duration, now time.Time) (SessionToken, error) {
	if len(secret) == 0 {
		return SessionToken{}, errors.New("セッション署名鍵が設定されていません")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	expiresAt := now.Add(ttl).Truncate(time.Second)

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   SessionSubject,
			Issuer:    SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return SessionToken{}, fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return SessionToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// ParseSessionToken はセッショントークンの署名・有効期限・発行者を検証してクレームを返す。
func ParseSessionToken(secret []byte, tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(SessionIssuer),
		jwt.WithSubject(SessionSubject),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if !token.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// SessionAuth はAuthorizationヘッダーのBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストにセッションクレームを設定する。
func SessionAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims, err := ParseSessionToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		c.Set(contextKeySession, claims)
		c.Next()
	}
}

// GetSession はGinコンテキストからセッションクレームを取得する。
// SessionAuthミドルウェアが事前に適用されている必要がある。
func GetSession(c *gin.Context) (*SessionClaims, bool) {
	v, ok := c.Get(contextKeySession)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*SessionClaims)
	return claims, ok
}
