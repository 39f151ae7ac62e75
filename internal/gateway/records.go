package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/opsdash/internal/records"
	"github.com/nao1215/opsdash/pkg/middleware"
)

// handleListCollections は利用可能なコレクション名の一覧を返すハンドラを返す。
func (s *Server) handleListCollections() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"collections": records.CollectionNames()})
	}
}

// handleListRecords はレコード一覧を返すハンドラを返す。
// クエリパラメータ order_by, desc, limit で並び順と件数を指定できる。
func (s *Server) handleListRecords() gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := records.ListOptions{OrderBy: c.Query("order_by")}

		if raw := c.Query("desc"); raw != "" {
			desc, err := strconv.ParseBool(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "descはtrueまたはfalseで指定してください"})
				return
			}
			opts.Desc = &desc
		}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limitは整数で指定してください"})
				return
			}
			opts.Limit = limit
		}

		items, err := s.store.List(c.Request.Context(), c.Param("collection"), opts)
		if err != nil {
			s.respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items": items,
			"count": len(items),
		})
	}
}

// handleCreateRecord はレコードを作成するハンドラを返す。
func (s *Server) handleCreateRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		input, ok := bindRecord(c)
		if !ok {
			return
		}

		rec, err := s.store.Create(c.Request.Context(), c.Param("collection"), input)
		if err != nil {
			s.respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusCreated, rec)
	}
}

// handleGetRecord はIDでレコードを取得するハンドラを返す。
func (s *Server) handleGetRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.store.Get(c.Request.Context(), c.Param("collection"), c.Param("id"))
		if err != nil {
			s.respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

// handleUpdateRecord はレコードを部分更新するハンドラを返す。
func (s *Server) handleUpdateRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		input, ok := bindRecord(c)
		if !ok {
			return
		}

		rec, err := s.store.Update(c.Request.Context(), c.Param("collection"), c.Param("id"), input)
		if err != nil {
			s.respondStoreError(c, err)
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

// handleDeleteRecord はレコードを削除するハンドラを返す。
func (s *Server) handleDeleteRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.Delete(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
			s.respondStoreError(c, err)
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// bindRecord はリクエストボディをJSONオブジェクトとして読み取る。
// 読み取れない場合は400を返してfalseを返す。
func bindRecord(c *gin.Context) (records.Record, bool) {
	var input records.Record
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
		return nil, false
	}
	return input, true
}

// respondStoreError はレコードストアのエラーをHTTPステータスに変換して返す。
func (s *Server) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, records.ErrUnknownCollection):
		c.JSON(http.StatusNotFound, gin.H{"error": "コレクションが存在しません"})
	case errors.Is(err, records.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "レコードが見つかりません"})
	case errors.Is(err, records.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error().
			Err(err).
			Str("collection", c.Param("collection")).
			Str("request_id", middleware.GetRequestID(c)).
			Msg("レコードストアの操作に失敗")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
	}
}
