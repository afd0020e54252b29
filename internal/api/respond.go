package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sentryline/internal/apperr"
	"sentryline/internal/logger"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// page is the parsed limit/page pair.
type page struct {
	Limit  int
	Page   int
	Offset int
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindSync:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": kind, "message": text}.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := apperr.Message(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": string(kind), "message": msg})
}

func badRequest(c *gin.Context, format string, args ...interface{}) {
	writeError(c, apperr.Validation(format, args...))
}

// parsePage reads ?limit and ?page.
func parsePage(c *gin.Context) (page, bool) {
	p := page{Limit: defaultLimit, Page: 1}
	if ls := c.Query("limit"); ls != "" {
		v, err := strconv.Atoi(ls)
		if err != nil || v <= 0 {
			badRequest(c, "invalid limit parameter")
			return page{}, false
		}
		p.Limit = v
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if ps := c.Query("page"); ps != "" {
		v, err := strconv.Atoi(ps)
		if err != nil || v <= 0 {
			badRequest(c, "invalid page parameter")
			return page{}, false
		}
		p.Page = v
	}
	p.Offset = (p.Page - 1) * p.Limit
	return p, true
}

// parseWindow reads ?hours or ?days. Absent both, def applies.
func parseWindow(c *gin.Context, def time.Duration) (time.Duration, bool) {
	if hs := c.Query("hours"); hs != "" {
		v, err := strconv.ParseFloat(hs, 64)
		if err != nil || v <= 0 {
			badRequest(c, "invalid hours parameter")
			return 0, false
		}
		return time.Duration(v * float64(time.Hour)), true
	}
	if ds := c.Query("days"); ds != "" {
		v, err := strconv.Atoi(ds)
		if err != nil || v <= 0 {
			badRequest(c, "invalid days parameter")
			return 0, false
		}
		return time.Duration(v) * 24 * time.Hour, true
	}
	return def, true
}

// parseBool reads an optional true/false query parameter.
func parseBool(c *gin.Context, name string) (*bool, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		badRequest(c, "invalid %s parameter", name)
		return nil, false
	}
	return &v, true
}

func paginated(data interface{}, total int64, p page) gin.H {
	return gin.H{
		"data": data,
		"pagination": gin.H{
			"total": total,
			"limit": p.Limit,
			"page":  p.Page,
		},
	}
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: %v", err)
		return false
	}
	return true
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
