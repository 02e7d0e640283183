package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Tchindavaldo/yuunna-backend/internal/catalog"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/normalize"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/jobqueue"
	"github.com/Tchindavaldo/yuunna-backend/internal/store"

	"github.com/gin-gonic/gin"
)

// lastDoc 指向本页最后一个商品，前端用它续页。
type lastDoc struct {
	ID   string        `json:"id"`
	Data model.Product `json:"data"`
}

// taobaoProductsResponse GET /taobao-products 的响应。
type taobaoProductsResponse struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message,omitempty"`
	Items      []model.DisplayGroup `json:"items"`
	Pagination model.Pagination     `json:"pagination"`
	LastDoc    *lastDoc             `json:"lastDoc"`
	Source     string               `json:"source,omitempty"`
}

// importRequest 导入任务请求体。
type importRequest struct {
	Keyword    string `json:"keyword" validate:"required,max=100"`
	Limit      int    `json:"limit" validate:"gte=0,lte=200"`
	UserID     string `json:"userId" validate:"max=64"`
	CategoryID string `json:"categoryId" validate:"max=64"`
}

// handleTaobaoProducts 处理淘宝商品搜索分页。
//
// GET /taobao-products?keyword=montre&cursor=0&limit=10&userId=
func (s *Server) handleTaobaoProducts(c *gin.Context) {
	keyword := strings.TrimSpace(c.Query("keyword"))
	if keyword == "" {
		keyword = s.cfg.App.DefaultKeyword
	}
	cursor := parseQueryInt(c, "cursor", 0)
	limit := parseQueryInt(c, "limit", s.cfg.App.DefaultLimit)
	if limit <= 0 {
		limit = s.cfg.App.DefaultLimit
	}
	userID := c.Query("userId")

	if cursor < 0 {
		s.respondProductsError(c, http.StatusBadRequest, "cursor must be >= 0", 0, limit)
		return
	}
	if maxLimit := s.cfg.App.MaxPageLimit; maxLimit > 0 && limit > maxLimit {
		s.respondProductsError(c, http.StatusBadRequest, "limit must be <= "+strconv.Itoa(maxLimit), cursor, limit)
		return
	}

	ctx := c.Request.Context()
	page, err := s.pager.Page(ctx, keyword, cursor, limit)
	if err != nil {
		s.logger.Error("load taobao products failed",
			slog.String("keyword", keyword),
			slog.Int("cursor", cursor),
			slog.Int("limit", limit),
			slog.String("error", err.Error()))
		s.respondProductsError(c, http.StatusInternalServerError, err.Error(), cursor, limit)
		return
	}

	pagination := page.Pagination
	if pagination.Limit == 0 {
		pagination = model.EmptyPagination(cursor, limit)
		pagination.TotalAvailable = len(page.Items)
	}

	products := s.normalizer.NormalizeAll(ctx, page.Items, normalize.Options{
		UserID:  userID,
		Keyword: keyword,
		Source:  string(page.Source),
	})
	groups := normalize.Group(products, catalog.NormalizeKey(keyword))

	var last *lastDoc
	if n := len(products); n > 0 {
		last = &lastDoc{ID: products[n-1].ID, Data: products[n-1]}
	}

	c.JSON(http.StatusOK, taobaoProductsResponse{
		Success:    true,
		Items:      groups,
		Pagination: pagination,
		LastDoc:    last,
		Source:     string(page.Source),
	})
}

// respondProductsError 错误路径同样返回完整的分页结构。
func (s *Server) respondProductsError(c *gin.Context, status int, message string, cursor, limit int) {
	c.JSON(status, taobaoProductsResponse{
		Success:    false,
		Message:    message,
		Items:      []model.DisplayGroup{},
		Pagination: model.EmptyPagination(cursor, limit),
	})
}

// handleImport 创建异步导入任务。
//
// POST /taobao-products/import
func (s *Server) handleImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	if errs := validateStruct(s.validate, req); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "validation failed", "errors": errs})
		return
	}

	job := &model.ImportJob{
		Keyword:    req.Keyword,
		Limit:      req.Limit,
		UserID:     req.UserID,
		CategoryID: req.CategoryID,
	}
	if err := s.jobs.Push(c.Request.Context(), job); err != nil {
		if errors.Is(err, jobqueue.ErrJobExists) {
			c.JSON(http.StatusOK, gin.H{"success": true, "status": "skipped_duplicate"})
			return
		}
		s.logger.Error("enqueue import job failed", slog.String("keyword", req.Keyword), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "enqueue import job failed"})
		return
	}

	s.logger.Info("import job queued", slog.String("job_id", job.ID), slog.String("keyword", job.Keyword))
	c.JSON(http.StatusAccepted, gin.H{"success": true, "jobId": job.ID})
}

// handleListProducts 列出已入库商品。
//
// GET /products?categoryId=&userId=&status=&keyword=&limit=20&cursor=<上一页最后一个 ID>
func (s *Server) handleListProducts(c *gin.Context) {
	limit := parseQueryInt(c, "limit", 20)
	filter := store.Filter{
		CategoryID: c.Query("categoryId"),
		UserID:     c.Query("userId"),
		Status:     c.Query("status"),
		Keyword:    c.Query("keyword"),
	}

	res, err := s.products.Query(c.Request.Context(), filter, limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "unknown cursor"})
			return
		}
		s.logger.Error("query products failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "query products failed"})
		return
	}

	var next any
	if res.HasMore {
		next = res.LastID
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    res.Products,
		"pagination": gin.H{
			"cursor":         c.Query("cursor"),
			"nextCursor":     next,
			"limit":          res.Limit,
			"hasMore":        res.HasMore,
			"totalAvailable": res.Total,
		},
	})
}

// handleGetProduct 读取单个商品。
//
// GET /products/:id
func (s *Server) handleGetProduct(c *gin.Context) {
	p, err := s.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "product not found"})
			return
		}
		s.logger.Error("get product failed", slog.String("id", c.Param("id")), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "get product failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": p})
}

// parseQueryInt 解析查询参数中的整数值。
//
// 参数:
//
//	c: Gin 上下文
//	key: 参数名
//	def: 默认值
//
// 返回值:
//
//	int: 解析后的整数，缺失或无法解析时返回默认值
func parseQueryInt(c *gin.Context, key string, def int) int {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return def
	}
	iv, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return iv
}
