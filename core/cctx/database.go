package cctx

import (
	"gorm.io/gorm"

	"github.com/saveblush/reraw-timeline/core/sql"
)

// GetDatabase get connection database
func (c *Context) GetDatabase() *gorm.DB {
	// not connected yet
	if sql.Database == nil || sql.Database.Statement == nil {
		return sql.Database
	}

	return sql.Database.WithContext(c)
}
