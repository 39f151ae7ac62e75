// Package httpclient は運用ダッシュボードのゲートウェイを呼び出すGoクライアントを提供する。
//
// Clientは共有パスワードでログインし、発行されたセッショントークンを
// SessionStoreに保存する。保存されたセッションが有効期限内であれば、
// 次回起動時もログイン済みとして扱う。レコードストアの一覧・作成・更新・削除も
// 同じセッションで呼び出せる。
package httpclient
