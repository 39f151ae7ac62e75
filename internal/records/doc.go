// Package records はダッシュボードの業務レコード（タスク、ミッション、メモ、仕入れ、販売、配送）を
// 保存する汎用のレコードストアを提供する。
//
// 各コレクションはフィールド定義（型、必須、デフォルト値、列挙値）を持ち、
// Storeはその定義に従って入力を検証し、SQLiteまたはPostgreSQLに対して
// 作成・取得・一覧・更新・削除を行う。ステータスがcompletedに変わったときの
// completed_atの記録など、元のダッシュボードがクライアント側で行っていた更新規則も
// サーバー側で適用する。
package records
