package blob

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
)

// Handler serves GET /blobs/:id. Serving a blob releases it.
func (s *Store) Handler() gin.HandlerFunc {
	gzip, err := gzhttp.NewWrapper(gzhttp.MinSize(1024))
	if err != nil {
		// only reachable with invalid options
		panic(err)
	}

	return func(c *gin.Context) {
		blobID := c.Param("id")

		data, contentType, err := s.Take(blobID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		gzip(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(data); err != nil {
				s.logger.Debug("blob write failed", zap.String("blob_id", blobID), zap.Error(err))
			}
		})).ServeHTTP(c.Writer, c.Request)
	}
}
