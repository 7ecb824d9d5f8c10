// Package repository 封装机台本地库的数据访问。
// 设备日志和支付流水以追加写为主，运维端按时间段分页查询。
package repository

import (
	"time"

	"gorm.io/gorm"
)

// 运维端分页拉取日志与流水，限制单页上限避免拖垮工控机
const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// BaseRepository 仓储公共能力
type BaseRepository interface {
	// GetDB 获取数据库实例
	GetDB() *gorm.DB
	// WithTx 返回绑定事务的仓储副本
	WithTx(tx *gorm.DB) BaseRepository
}

// BaseRepo 各仓储嵌入的公共实现
type BaseRepo struct {
	db *gorm.DB
}

// GetDB 获取数据库实例
func (r *BaseRepo) GetDB() *gorm.DB {
	return r.db
}

// Pagination 分页参数，Total由查询回填
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 规整页码与页大小
func NewPagination(page, pageSize int) *Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Pagination{Page: page, PageSize: pageSize}
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Paginate 组装分页查询的Scope
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset()).Limit(p.PageSize)
	}
}

// TimeRange 按创建时间过滤，nil表示不限
func TimeRange(start, end *time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if start != nil {
			db = db.Where("created_at >= ?", *start)
		}
		if end != nil {
			db = db.Where("created_at <= ?", *end)
		}
		return db
	}
}
