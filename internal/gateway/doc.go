// Package gateway は運用ダッシュボードの認証ゲートウェイを提供する。
//
// 共有パスワードをbcryptダイジェストと照合するPOST /login、
// 発行したセッショントークンを確認するGET /session、
// トークンで保護されたレコードストアのCRUD（/api/v1/:collection）を公開する。
// オリジン許可リストに含まれないブラウザからのリクエストは照合の前に拒否し、
// 失敗が続くクライアントIPからのログインは一定時間受け付けない。
package gateway
