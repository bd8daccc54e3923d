package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Decompressed request bodies are capped a little above the largest
// accepted upload; anything inflating past that is cut off mid-read and
// fails request parsing.
const maxInflatedBody = attachmentMaxSize + requestBodyMaxSize

// GzipRequestMiddleware transparently inflates gzip-encoded request
// bodies so handlers always see plain payloads. Invalid gzip data is
// rejected with a 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !gzipEncoded(req.Header) {
				return next(c)
			}

			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &inflatedBody{r: io.LimitReader(gr, maxInflatedBody), gr: gr, raw: req.Body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func gzipEncoded(h http.Header) bool {
	for _, enc := range strings.Split(h.Get(echo.HeaderContentEncoding), ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

// inflatedBody reads the capped decompressed stream and closes both the
// gzip reader and the underlying connection body.
type inflatedBody struct {
	r   io.Reader
	gr  *gzip.Reader
	raw io.Closer
}

func (b *inflatedBody) Read(p []byte) (int, error) { return b.r.Read(p) }

func (b *inflatedBody) Close() error {
	err := b.gr.Close()
	if cerr := b.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
