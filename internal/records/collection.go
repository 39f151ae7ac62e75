package records

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
)

// Kind はフィールドの値の型を表す。
type Kind int

const (
	// KindText は文字列。
	KindText Kind = iota
	// KindInteger は整数。
	KindInteger
	// KindReal は浮動小数点数。
	KindReal
	// KindTimestamp は日時。保存時はUTCの固定長文字列に正規化する。
	KindTimestamp
)

// timestampLayout は日時を保存する書式。固定長のため文字列比較で時系列順に並ぶ。
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// acceptedTimestampLayouts は入力として受け付ける日時の書式。
var acceptedTimestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

const (
	statusPending   = "pending"
	statusCompleted = "completed"
	statusUrgent    = "urgent"
)

// Record は1件のレコード。キーは列名、値はstring/int64/float64/nilのいずれか。
type Record map[string]any

// ID はレコードのIDを返す。
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Field はコレクションの列定義。
type Field struct {
	// Name は列名。
	Name string
	// Kind は値の型。
	Kind Kind
	// Required は作成時に必須で、空にできないことを表す。
	Required bool
	// Nullable はnullを許可することを表す。
	Nullable bool
	// Default は作成時に省略された場合の値。
	Default any
	// Auto は作成時に省略された場合に現在時刻を設定することを表す。
	Auto bool
	// Enum は許可される値の集合。空の場合は制限しない。
	Enum []string
}

// Order は一覧取得時の並び順。
type Order struct {
	// Column は並び替えに使う列名。
	Column string
	// Desc は降順かどうか。
	Desc bool
}

// Collection はレコードの種類ごとの定義。
type Collection struct {
	// Name はコレクション名（テーブル名）。
	Name string
	// Fields はid以外の列定義。
	Fields []Field
	// DefaultOrder は一覧取得時のデフォルトの並び順。
	DefaultOrder Order
	// TracksCompletion はstatusの変化に合わせてcompleted_atを更新することを表す。
	TracksCompletion bool
	// TouchesUpdatedAt は更新時にupdated_atを現在時刻にすることを表す。
	TouchesUpdatedAt bool
}

// field は列名に対応するフィールド定義を返す。
func (c *Collection) field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// hasColumn は列が存在するかを返す。idも含む。
func (c *Collection) hasColumn(name string) bool {
	if name == "id" {
		return true
	}
	_, ok := c.field(name)
	return ok
}

// columns はSELECTで取得する列名をid、定義順に返す。
func (c *Collection) columns() []string {
	cols := make([]string, 0, len(c.Fields)+1)
	cols = append(cols, "id")
	for _, f := range c.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// createdAtField は全コレクション共通の作成日時列。
var createdAtField = Field{Name: "created_at", Kind: KindTimestamp, Auto: true}

// completedAtField は完了日時列。
var completedAtField = Field{Name: "completed_at", Kind: KindTimestamp, Nullable: true}

// builtinCollections はダッシュボードで扱うコレクションの定義。
var builtinCollections = []*Collection{
	{
		Name: "tasks",
		Fields: []Field{
			{Name: "title", Kind: KindText, Required: true},
			{Name: "description", Kind: KindText, Default: ""},
			{Name: "status", Kind: KindText, Default: statusPending, Enum: []string{statusPending, statusCompleted, statusUrgent}},
			createdAtField,
			completedAtField,
		},
		DefaultOrder:     Order{Column: "created_at", Desc: true},
		TracksCompletion: true,
	},
	{
		Name: "missions",
		Fields: []Field{
			{Name: "title", Kind: KindText, Required: true},
			{Name: "description", Kind: KindText, Default: ""},
			{Name: "scheduled_date", Kind: KindTimestamp, Required: true},
			{Name: "status", Kind: KindText, Default: statusPending, Enum: []string{statusPending, statusCompleted, statusUrgent}},
			createdAtField,
			completedAtField,
		},
		DefaultOrder:     Order{Column: "scheduled_date", Desc: false},
		TracksCompletion: true,
	},
	{
		Name: "notes",
		Fields: []Field{
			{Name: "content", Kind: KindText, Required: true},
			createdAtField,
			{Name: "updated_at", Kind: KindTimestamp, Auto: true},
		},
		DefaultOrder:     Order{Column: "updated_at", Desc: true},
		TouchesUpdatedAt: true,
	},
	{
		Name: "purchases",
		Fields: []Field{
			{Name: "item", Kind: KindText, Required: true},
			{Name: "quantity", Kind: KindInteger, Default: int64(1)},
			{Name: "price", Kind: KindReal, Default: float64(0)},
			{Name: "status", Kind: KindText, Default: statusPending, Enum: []string{statusPending, statusCompleted}},
			createdAtField,
		},
		DefaultOrder: Order{Column: "created_at", Desc: true},
	},
	{
		Name: "sales",
		Fields: []Field{
			{Name: "item", Kind: KindText, Required: true},
			{Name: "quantity", Kind: KindInteger, Default: int64(1)},
			{Name: "price", Kind: KindReal, Required: true},
			{Name: "buyer", Kind: KindText, Default: ""},
			createdAtField,
		},
		DefaultOrder: Order{Column: "created_at", Desc: true},
	},
	{
		Name: "deliveries",
		Fields: []Field{
			{Name: "description", Kind: KindText, Required: true},
			{Name: "recipient", Kind: KindText, Required: true},
			{Name: "status", Kind: KindText, Default: statusPending, Enum: []string{statusPending, statusCompleted}},
			createdAtField,
			completedAtField,
		},
		DefaultOrder:     Order{Column: "created_at", Desc: true},
		TracksCompletion: true,
	},
}

// CollectionNames は定義済みのコレクション名を昇順で返す。
func CollectionNames() []string {
	names := make([]string, 0, len(builtinCollections))
	for _, c := range builtinCollections {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// lookupCollection は名前に対応するコレクション定義を返す。
func lookupCollection(name string) (*Collection, error) {
	for _, c := range builtinCollections {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}

// normalizeValue は入力値をフィールドの型に合わせて変換・検証する。
// JSONから復元した値（string, float64, json.Number, bool, nil）を受け付ける。
func normalizeValue(f Field, v any) (any, error) {
	if v == nil {
		if f.Nullable {
			return nil, nil
		}
		return nil, &ValidationError{Field: f.Name, Reason: "nullは指定できません"}
	}

	switch f.Kind {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Field: f.Name, Reason: "文字列を指定してください"}
		}
		if f.Required && strings.TrimSpace(s) == "" {
			return nil, &ValidationError{Field: f.Name, Reason: "空にできません"}
		}
		if len(f.Enum) > 0 && !slices.Contains(f.Enum, s) {
			return nil, &ValidationError{Field: f.Name, Reason: fmt.Sprintf("%s のいずれかを指定してください", strings.Join(f.Enum, ", "))}
		}
		return s, nil

	case KindInteger:
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) || math.IsInf(n, 0) {
			return nil, &ValidationError{Field: f.Name, Reason: "整数を指定してください"}
		}
		if n < 0 {
			return nil, &ValidationError{Field: f.Name, Reason: "0以上を指定してください"}
		}
		// float64(math.MaxInt64) は 2^63 に丸められるため、2^63 以上を範囲外とする
		if n >= 1<<63 {
			return nil, &ValidationError{Field: f.Name, Reason: "値が大きすぎます"}
		}
		return int64(n), nil

	case KindReal:
		n, ok := toFloat(v)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, &ValidationError{Field: f.Name, Reason: "数値を指定してください"}
		}
		if n < 0 {
			return nil, &ValidationError{Field: f.Name, Reason: "0以上を指定してください"}
		}
		return n, nil

	case KindTimestamp:
		s, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Field: f.Name, Reason: "日時文字列を指定してください"}
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return nil, &ValidationError{Field: f.Name, Reason: "日時の形式が不正です"}
		}
		return formatTimestamp(t), nil
	}

	return nil, &ValidationError{Field: f.Name, Reason: "未対応の型です"}
}

// toFloat はJSON由来の数値をfloat64に変換する。
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// parseTimestamp は受け付け可能な書式の日時文字列を解釈する。
// タイムゾーンの無い書式はUTCとして扱う。
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range acceptedTimestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// formatTimestamp は日時を保存用の書式に変換する。
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
