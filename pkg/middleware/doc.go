// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// オリジン許可リストによるCORS制御、セッショントークン（JWT）の発行と検証、
// ログイン試行のレート制限、リクエストIDの付与、構造化リクエストログ、
// パニックリカバリを含む。
package middleware
