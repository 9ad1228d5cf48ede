package repository

import "gorm.io/gorm"

// maxPageSize 单页上限，防止后台列表一次拉取过多审计记录
const maxPageSize = 200

// applyPagination pageSize <= 0 表示不分页，页码从 1 开始
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	pageSize = min(pageSize, maxPageSize)
	page = max(page, 1)
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}
