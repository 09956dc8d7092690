package orm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kbukum/gowizard/logger"
)

type txKey struct{}

// UnitOfWork runs the rest of the handler chain in a transaction. It
// commits when the handlers record no errors and respond below 400, and
// rolls back otherwise. Handlers reach the transaction through Session.
func (f *SessionFactory) UnitOfWork() gin.HandlerFunc {
	return func(c *gin.Context) {
		tx := f.db.WithContext(c.Request.Context()).Begin()
		if tx.Error != nil {
			_ = c.Error(fmt.Errorf("orm: begin unit of work: %w", tx.Error))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), txKey{}, tx))

		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			}
		}()
		c.Next()

		if len(c.Errors) > 0 || c.Writer.Status() >= http.StatusBadRequest {
			if err := tx.Rollback().Error; err != nil {
				f.log.Warn("Unit of work rollback failed", map[string]interface{}{logger.FieldError: err.Error(), logger.FieldPath: c.FullPath()})
			}
			return
		}
		if err := tx.Commit().Error; err != nil {
			f.log.Error("Unit of work commit failed", map[string]interface{}{logger.FieldError: err.Error(), logger.FieldPath: c.FullPath()})
			_ = c.Error(fmt.Errorf("orm: commit unit of work: %w", err))
		}
	}
}

// SessionFor returns the request's unit of work, or a plain session when the
// route has none.
func (f *SessionFactory) SessionFor(c *gin.Context) *gorm.DB {
	return f.Session(c.Request.Context())
}
