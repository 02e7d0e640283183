package model

import (
	"time"
)

// ListingRecord 是从搜索结果页（或备用 API）解析出的原始商品记录。
//
// 所有字段都可能为空字符串；它只在内存中流转，不会原样持久化。
type ListingRecord struct {
	Title     string `json:"title"`     // 商品标题（通常为中文）
	Price     string `json:"price"`     // 价格文本，可能带货币符号，如 "¥128.50"
	ImageURL  string `json:"imageUrl"`  // 主图链接
	Link      string `json:"link"`      // 商品详情页链接
	Seller    string `json:"seller"`    // 店铺名
	Location  string `json:"location"`  // 发货地
	SalesText string `json:"salesText"` // 销量文本，如 "1000+人付款"
}

// Product 表示归一化后的目录商品（对外即 NormalizedProduct）。
//
// ID 由时间戳加随机数合成；Price 始终 >= 0；
// 未发生翻译或翻译失败时 TitleTranslated 等于 TitleOriginal。
type Product struct {
	ID              string    `gorm:"type:varchar(64);primaryKey" json:"id"`          // 合成 ID: taobao_<ms>_<rand>
	TitleOriginal   string    `gorm:"type:varchar(512);not null" json:"titleOriginal"` // 原始标题
	TitleTranslated string    `gorm:"type:varchar(1024)" json:"titleTranslated"`       // 翻译后的标题
	Price           float64   `gorm:"not null;default:0" json:"price"`                 // 价格（人民币）
	ImageURL        string    `gorm:"type:varchar(1024)" json:"imageUrl"`              // 主图
	SourceLink      string    `gorm:"type:varchar(1024)" json:"sourceLink"`            // 源商品链接
	Seller          string    `gorm:"type:varchar(255)" json:"seller"`                 // 店铺
	Location        string    `gorm:"type:varchar(255)" json:"location"`               // 发货地
	SalesText       string    `gorm:"type:varchar(128)" json:"salesText,omitempty"`    // 销量文本
	CategoryID      string    `gorm:"type:varchar(64);index" json:"categoryId"`        // 主分类 ID
	SubCategoryID   *string   `gorm:"type:varchar(64)" json:"subCategoryId"`           // 子分类 ID（可能为空）
	MainCategory    string    `gorm:"type:varchar(64)" json:"mainCategory"`            // 主分类名
	SubCategory     *string   `gorm:"type:varchar(64)" json:"subCategory"`             // 子分类名（可能为空）
	SearchKeyword   string    `gorm:"type:varchar(255);index" json:"searchKeyword,omitempty"`
	UserID          string    `gorm:"type:varchar(64);index" json:"userId"` // 归属用户，可为空
	Status          string    `gorm:"type:varchar(32);index;default:active" json:"status"`
	Source          string    `gorm:"type:varchar(32)" json:"source,omitempty"` // 数据来源: taobao / fallback_api / demo
	CreatedAt       time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName 指定表名。
func (Product) TableName() string {
	return "products"
}

// StatusActive 商品默认状态。
const StatusActive = "active"

// CategoryInfo 是分类检测的结果。
type CategoryInfo struct {
	MainCategoryID string  `json:"mainCategoryId"`
	SubCategoryID  *string `json:"subCategoryId"`
	MainCategory   string  `json:"mainCategory"`
	SubCategory    *string `json:"subCategory"`
}

// DisplayGroupSize 每个展示分组的固定槽位数。
const DisplayGroupSize = 18

// DisplayGroup 是固定 18 个槽位的商品分组，不足部分以 nil 填充。
type DisplayGroup struct {
	ID    string                     `json:"id"`
	Items [DisplayGroupSize]*Product `json:"items"`
}

// Count 返回分组中非空槽位的数量。
func (g DisplayGroup) Count() int {
	n := 0
	for _, p := range g.Items {
		if p != nil {
			n++
		}
	}
	return n
}

// Pagination 是每次分页响应携带的分页信息。
//
// NextCursor 仅在 HasMore 为 true 时非空。
type Pagination struct {
	Cursor         int  `json:"cursor"`
	NextCursor     *int `json:"nextCursor"`
	Limit          int  `json:"limit"`
	HasMore        bool `json:"hasMore"`
	TotalAvailable int  `json:"totalAvailable"`
}

// EmptyPagination 返回错误路径上使用的安全分页信息。
func EmptyPagination(cursor, limit int) Pagination {
	return Pagination{
		Cursor:         cursor,
		NextCursor:     nil,
		Limit:          limit,
		HasMore:        false,
		TotalAvailable: 0,
	}
}

// ImportJob 是一次"抓取并入库"的异步任务。
type ImportJob struct {
	ID         string    `json:"id"`                   // 任务 ID (uuid)
	Keyword    string    `json:"keyword"`              // 搜索关键词
	Limit      int       `json:"limit"`                // 最多导入数量，0 表示整页
	UserID     string    `json:"userId,omitempty"`     // 归属用户
	CategoryID string    `json:"categoryId,omitempty"` // 指定分类（优先于自动检测）
	CreatedAt  time.Time `json:"createdAt"`
}
