package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Record はレコードストアの1件のレコード。
type Record map[string]any

// ID はレコードのIDを返す。
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// ListOptions は一覧取得の条件。
type ListOptions struct {
	// OrderBy は並び替えに使う列名。空の場合はコレクションのデフォルト順。
	OrderBy string
	// Desc は降順にするかどうか。nilの場合はゲートウェイの既定に従う。
	Desc *bool
	// Limit は取得件数の上限。0の場合は指定しない。
	Limit int
}

// query はListOptionsをクエリ文字列に変換する。
func (o ListOptions) query() string {
	v := url.Values{}
	if o.OrderBy != "" {
		v.Set("order_by", o.OrderBy)
	}
	if o.Desc != nil {
		v.Set("desc", strconv.FormatBool(*o.Desc))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// recordPath はコレクションとIDからAPIパスを組み立てる。
func recordPath(collection string, id ...string) string {
	p := "/api/v1/" + url.PathEscape(collection)
	for _, part := range id {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// List はコレクションのレコード一覧を取得する。
func (c *Client) List(ctx context.Context, collection string, opts ListOptions) ([]Record, error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}

	var resp struct {
		Items []Record `json:"items"`
	}
	if err := c.authorized(ctx, http.MethodGet, recordPath(collection)+opts.query(), session, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Get はIDでレコードを取得する。
func (c *Client) Get(ctx context.Context, collection, id string) (Record, error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := c.authorized(ctx, http.MethodGet, recordPath(collection, id), session, nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create はレコードを作成し、ゲートウェイが補完した結果を返す。
func (c *Client) Create(ctx context.Context, collection string, fields Record) (Record, error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := c.authorized(ctx, http.MethodPost, recordPath(collection), session, fields, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update はレコードを部分更新し、更新後のレコードを返す。
func (c *Client) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := c.authorized(ctx, http.MethodPatch, recordPath(collection, id), session, fields, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete はレコードを削除する。
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	session, err := c.Session()
	if err != nil {
		return err
	}
	return c.authorized(ctx, http.MethodDelete, recordPath(collection, id), session, nil, nil)
}
