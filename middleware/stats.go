package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seo-optimizer/seo-inspector/stats"
)

// Stats counts requests to the routes mapped in ops. Responses with a status
// of 400 or above count as failures.
func Stats(storage *stats.Storage, ops map[string]stats.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		op, ok := ops[c.FullPath()]
		if !ok {
			return
		}
		storage.Record(op, c.Writer.Status() >= 400, time.Since(start))
	}
}
