package middleware

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DbField 上下文中的数据库键
const DbField = "db"

// InjectDB 将全局 DB 注入请求上下文
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(DbField, db)
		c.Next()
	}
}

// GetDB 从请求上下文取 DB
func GetDB(c *gin.Context) *gorm.DB {
	return c.MustGet(DbField).(*gorm.DB)
}
