// Package store 提供基于 GORM + MySQL 的商品持久化。
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ErrNotFound 商品不存在。
var ErrNotFound = errors.New("product not found")

const (
	defaultQueryLimit = 20
	maxQueryLimit     = 100
)

// Filter 商品列表过滤条件，空字段表示不过滤。
type Filter struct {
	CategoryID string
	UserID     string
	Status     string
	Keyword    string
}

// QueryResult 是一次列表查询的结果。
type QueryResult struct {
	Products []model.Product
	Total    int64 // 满足过滤条件的总数（COUNT）
	HasMore  bool
	LastID   string // 本页最后一条的 ID，作为下一页的游标
	Limit    int    // 实际生效的条数上限（已截断到 [1, 100]）
}

// cursor 是游标文档的排序键。
type cursor struct {
	ID        string
	CreatedAt time.Time
}

// ProductStore 商品存储。
type ProductStore struct {
	db *gorm.DB
}

// Open 连接 MySQL 并迁移 products 表。
//
// 参数:
//
//	dsn: MySQL 连接字符串
//
// 返回值:
//
//	*gorm.DB: 数据库连接
//	error: 连接或迁移失败返回错误
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.AutoMigrate(&model.Product{}); err != nil {
		return nil, fmt.Errorf("migrate products: %w", err)
	}
	return db, nil
}

// New 基于已有连接创建 ProductStore。
func New(db *gorm.DB) *ProductStore {
	return &ProductStore{db: db}
}

// Add 写入一条商品。
func (s *ProductStore) Add(ctx context.Context, p *model.Product) error {
	if p.Status == "" {
		p.Status = model.StatusActive
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("insert product %s: %w", p.ID, err)
	}
	return nil
}

// Get 按 ID 读取商品，不存在时返回 ErrNotFound。
func (s *ProductStore) Get(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// ExistsByLink 判断源链接是否已经入库。
func (s *ProductStore) ExistsByLink(ctx context.Context, link string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Where("source_link = ?", link).Limit(1).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check product link: %w", err)
	}
	return n > 0, nil
}

// Query 按过滤条件分页查询商品，按创建时间倒序。
//
// startAfterID 为上一页最后一条商品的 ID，为空表示第一页；
// 游标商品不存在时返回 ErrNotFound。Total 为满足过滤条件的真实总数。
//
// 参数:
//
//	ctx: 上下文
//	f: 过滤条件
//	limit: 每页条数（<= 0 使用默认值，超过上限截断）
//	startAfterID: 游标
//
// 返回值:
//
//	QueryResult: 查询结果
//	error: 查询失败返回错误
func (s *ProductStore) Query(ctx context.Context, f Filter, limit int, startAfterID string) (QueryResult, error) {
	limit = clampLimit(limit)

	var after *cursor
	if startAfterID != "" {
		var anchor model.Product
		if err := s.db.WithContext(ctx).Select("id", "created_at").Where("id = ?", startAfterID).First(&anchor).Error; err != nil {
			return QueryResult{}, fmt.Errorf("load cursor %s: %w", startAfterID, mapErr(err))
		}
		after = &cursor{ID: anchor.ID, CreatedAt: anchor.CreatedAt}
	}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.Product{}).Scopes(filterScope(f))
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return QueryResult{}, fmt.Errorf("count products: %w", err)
	}

	products := []model.Product{}
	if err := base().Scopes(afterScope(after), orderScope).Limit(limit + 1).Find(&products).Error; err != nil {
		return QueryResult{}, fmt.Errorf("query products: %w", err)
	}

	res := QueryResult{Total: total, Limit: limit}
	if len(products) > limit {
		res.HasMore = true
		products = products[:limit]
	}
	res.Products = products
	if len(products) > 0 {
		res.LastID = products[len(products)-1].ID
	}
	return res, nil
}

func filterScope(f Filter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.CategoryID != "" {
			db = db.Where("category_id = ?", f.CategoryID)
		}
		if f.UserID != "" {
			db = db.Where("user_id = ?", f.UserID)
		}
		if f.Status != "" {
			db = db.Where("status = ?", f.Status)
		}
		if f.Keyword != "" {
			db = db.Where("search_keyword = ?", f.Keyword)
		}
		return db
	}
}

// afterScope 取排序在游标之后的记录：(created_at, id) 严格小于游标。
func afterScope(c *cursor) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if c == nil {
			return db
		}
		return db.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
	}
}

func orderScope(db *gorm.DB) *gorm.DB {
	return db.Order("created_at DESC").Order("id DESC")
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
