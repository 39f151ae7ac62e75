package records

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nao1215/opsdash/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MaxListLimit は一覧取得で指定できる件数の上限。
const MaxListLimit = 1000

// ListOptions は一覧取得の条件。
type ListOptions struct {
	// OrderBy は並び替えに使う列名。空の場合はコレクションのデフォルト順。
	OrderBy string
	// Desc は降順にするかどうか。nilの場合、OrderBy未指定ならデフォルト順の向き、指定時は昇順。
	Desc *bool
	// Limit は取得件数の上限。0の場合は制限しない。
	Limit int
}

// Store はコレクション単位でレコードを保存するSQLストア。
type Store struct {
	// db はSQLデータベース接続。
	db *sql.DB
	// ph はドライバに合わせたプレースホルダー形式。
	ph migration.Placeholder
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
	// logger はマイグレーションの適用状況を記録する。
	logger zerolog.Logger
}

// New は接続済みのデータベースからStoreを生成する。
func New(db *sql.DB, ph migration.Placeholder, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		ph:     ph,
		now:    time.Now,
		logger: logger,
	}
}

// Open はDSNに応じたドライバでデータベースに接続し、スキーマを適用したStoreを返す。
//
// postgres:// または postgresql:// で始まるDSNはpgxで、それ以外はSQLiteで開く。
// SQLiteのDSNは先頭の sqlite:// を取り除いてファイルパスとして扱う。
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	driver, source, ph := resolveDSN(dsn)

	sqlDB, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if driver == "sqlite" {
		// SQLiteへのアクセスは1接続に直列化する。
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	s := New(sqlDB, ph, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// resolveDSN はDSNからドライバ名、接続文字列、プレースホルダー形式を決定する。
func resolveDSN(dsn string) (string, string, migration.Placeholder) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx", dsn, migration.Dollar
	}

	source := strings.TrimPrefix(dsn, "sqlite://")
	if source == "" {
		source = "opsdash.db"
	}
	if source != ":memory:" && !strings.Contains(source, "?") {
		source += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return "sqlite", source, migration.Question
}

// Migrate は埋め込みのマイグレーションを適用する。
func (s *Store) Migrate(ctx context.Context) error {
	if err := migration.Run(ctx, s.db, s.ph, migrationsFS, "migrations", s.logger); err != nil {
		return fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Create はレコードを作成し、IDと既定値を補完した結果を返す。
func (s *Store) Create(ctx context.Context, collection string, input Record) (Record, error) {
	c, err := lookupCollection(collection)
	if err != nil {
		return nil, err
	}

	rec, err := s.prepareCreate(c, input)
	if err != nil {
		return nil, err
	}

	cols := c.columns()
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = rec[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		c.Name, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := s.db.ExecContext(ctx, s.ph.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%sの作成に失敗: %w", c.Name, err)
	}
	return rec, nil
}

// prepareCreate は作成用の入力を検証し、既定値を補完したレコードを組み立てる。
func (s *Store) prepareCreate(c *Collection, input Record) (Record, error) {
	for key := range input {
		if key == "id" {
			return nil, &ValidationError{Field: key, Reason: "idは指定できません"}
		}
		if !c.hasColumn(key) {
			return nil, &ValidationError{Field: key, Reason: "未定義のフィールドです"}
		}
	}

	now := formatTimestamp(s.now())
	rec := Record{"id": uuid.NewString()}
	for _, f := range c.Fields {
		v, provided := input[f.Name]
		switch {
		case provided:
			nv, err := normalizeValue(f, v)
			if err != nil {
				return nil, err
			}
			rec[f.Name] = nv
		case f.Auto:
			rec[f.Name] = now
		case f.Default != nil:
			rec[f.Name] = f.Default
		case f.Required:
			return nil, &ValidationError{Field: f.Name, Reason: "必須です"}
		default:
			rec[f.Name] = nil
		}
	}

	if c.TracksCompletion {
		if _, explicit := input["completed_at"]; !explicit && rec["status"] == statusCompleted {
			rec["completed_at"] = now
		}
	}
	return rec, nil
}

// Get はIDでレコードを取得する。
func (s *Store) Get(ctx context.Context, collection, id string) (Record, error) {
	c, err := lookupCollection(collection)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, s.db, c, id)
}

// queryRower は*sql.DBと*sql.Txに共通するQueryRowContext。
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// get はIDでレコードを1件取得する。
func (s *Store) get(ctx context.Context, q queryRower, c *Collection, id string) (Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(c.columns(), ", "), c.Name)
	rec, err := scanRecord(c, q.QueryRowContext(ctx, s.ph.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%sの取得に失敗: %w", c.Name, err)
	}
	return rec, nil
}

// List はレコードを並び順に従って取得する。
func (s *Store) List(ctx context.Context, collection string, opts ListOptions) ([]Record, error) {
	c, err := lookupCollection(collection)
	if err != nil {
		return nil, err
	}

	order := c.DefaultOrder
	if opts.OrderBy != "" {
		if !c.hasColumn(opts.OrderBy) {
			return nil, &ValidationError{Field: "order_by", Reason: "未定義の列です"}
		}
		order = Order{Column: opts.OrderBy}
	}
	if opts.Desc != nil {
		order.Desc = *opts.Desc
	}
	if opts.Limit < 0 || opts.Limit > MaxListLimit {
		return nil, &ValidationError{Field: "limit", Reason: fmt.Sprintf("0から%dの範囲で指定してください", MaxListLimit)}
	}

	direction := "ASC"
	if order.Desc {
		direction = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s %s, id ASC",
		strings.Join(c.columns(), ", "), c.Name, order.Column, direction)

	var args []any
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.ph.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s一覧の取得に失敗: %w", c.Name, err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(c, rows)
		if err != nil {
			return nil, fmt.Errorf("%s一覧の読み取りに失敗: %w", c.Name, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s一覧の読み取りに失敗: %w", c.Name, err)
	}
	return result, nil
}

// Update はレコードを部分更新し、更新後のレコードを返す。
// statusの変化に応じてcompleted_atを、メモではupdated_atを自動で更新する。
func (s *Store) Update(ctx context.Context, collection, id string, input Record) (Record, error) {
	c, err := lookupCollection(collection)
	if err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, &ValidationError{Reason: "更新するフィールドがありません"}
	}

	changes := make(Record, len(input)+1)
	for key, v := range input {
		if key == "id" {
			return nil, &ValidationError{Field: key, Reason: "idは変更できません"}
		}
		f, ok := c.field(key)
		if !ok {
			return nil, &ValidationError{Field: key, Reason: "未定義のフィールドです"}
		}
		nv, err := normalizeValue(f, v)
		if err != nil {
			return nil, err
		}
		changes[key] = nv
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := s.get(ctx, tx, c, id)
	if err != nil {
		return nil, err
	}

	now := formatTimestamp(s.now())
	if c.TracksCompletion {
		if status, ok := changes["status"]; ok {
			if _, explicit := input["completed_at"]; !explicit {
				switch {
				case status != statusCompleted:
					changes["completed_at"] = nil
				case current["status"] != statusCompleted:
					changes["completed_at"] = now
				}
			}
		}
	}
	if c.TouchesUpdatedAt {
		if _, explicit := input["updated_at"]; !explicit {
			changes["updated_at"] = now
		}
	}

	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, key := range keys {
		sets[i] = key + " = ?"
		args = append(args, changes[key])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", c.Name, strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, s.ph.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("%sの更新に失敗: %w", c.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%sの更新のコミットに失敗: %w", c.Name, err)
	}

	for key, v := range changes {
		current[key] = v
	}
	return current, nil
}

// Delete はIDでレコードを削除する。
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	c, err := lookupCollection(collection)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.Name)
	res, err := s.db.ExecContext(ctx, s.ph.Rebind(query), id)
	if err != nil {
		return fmt.Errorf("%sの削除に失敗: %w", c.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%sの削除結果の取得に失敗: %w", c.Name, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsに共通するScan。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord は列定義に従って1行を読み取りRecordに変換する。
func scanRecord(c *Collection, row rowScanner) (Record, error) {
	var id string
	dests := make([]any, 0, len(c.Fields)+1)
	dests = append(dests, &id)
	for _, f := range c.Fields {
		switch f.Kind {
		case KindInteger:
			dests = append(dests, new(sql.NullInt64))
		case KindReal:
			dests = append(dests, new(sql.NullFloat64))
		default:
			dests = append(dests, new(sql.NullString))
		}
	}

	if err := row.Scan(dests...); err != nil {
		return nil, err
	}

	rec := Record{"id": id}
	for i, f := range c.Fields {
		switch d := dests[i+1].(type) {
		case *sql.NullInt64:
			rec[f.Name] = nullable(d.Valid, d.Int64)
		case *sql.NullFloat64:
			rec[f.Name] = nullable(d.Valid, d.Float64)
		case *sql.NullString:
			rec[f.Name] = nullable(d.Valid, d.String)
		}
	}
	return rec, nil
}

// nullable はvalidがfalseの場合にnilを返す。
func nullable[T any](valid bool, v T) any {
	if !valid {
		return nil
	}
	return v
}

// placeholders は n 個の "?" をカンマ区切りで返す。
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
