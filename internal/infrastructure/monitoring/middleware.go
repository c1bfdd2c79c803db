package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for host request metrics
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps blob ids out of label values
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures RPC call duration
type Timer struct {
	start   time.Time
	metrics *Metrics
	side    string
	method  string
}

// NewTimer creates a timer and marks the call in flight
func NewTimer(metrics *Metrics, side, method string) *Timer {
	metrics.CallStarted(side)
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		side:    side,
		method:  method,
	}
}

// Stop records the call with status and clears the in-flight mark
func (t *Timer) Stop(status string) {
	t.metrics.CallFinished(t.side)
	t.metrics.RecordRPCCall(t.side, t.method, status, time.Since(t.start))
}
