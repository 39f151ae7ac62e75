// Package password はダッシュボードの共有パスワードを検証するためのハッシュ処理を提供する。
//
// bcryptのダイジェストはプロセス起動時に一度だけ読み込まれ、以降は変更されない。
// ダイジェストと平文のパスワードはログやレスポンスに出力してはならないため、
// Digest型は文字列化・JSON化の際に伏せ字を返す。
package password
