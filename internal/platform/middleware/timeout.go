package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout sets a deadline on each request context and answers 504 if
// the handler has not returned by then. Paths under any of skipPrefixes are
// left alone; the chat relay waits on a slow upstream model and has its own
// client timeout.
//
// The handler writes into a buffer that reaches the client only when it
// finishes in time. On expiry the middleware still waits for the handler to
// return, so the echo.Context is never recycled while in use.
func RequestTimeout(timeout time.Duration, skipPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, prefix := range skipPrefixes {
				if strings.HasPrefix(path, prefix) {
					return next(c)
				}
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			original := c.Response()
			buf := newBufferedWriter()
			c.SetResponse(echo.NewResponse(buf, c.Echo()))

			done := make(chan handlerResult, 1)
			go func() {
				var res handlerResult
				defer func() {
					if p := recover(); p != nil {
						res.panicked = p
					}
					done <- res
				}()
				res.err = next(c)
			}()

			var (
				res      handlerResult
				timedOut bool
			)
			select {
			case res = <-done:
			case <-ctx.Done():
				timedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
				// The handler sees the cancelled context; wait for it to let go of c.
				res = <-done
			}

			buffered := c.Response()
			c.SetResponse(original)
			if res.panicked != nil {
				panic(res.panicked)
			}
			if timedOut {
				return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
			}
			if buffered.Committed {
				if err := buf.flushTo(original, buffered.Status); err != nil {
					return err
				}
			}
			return res.err
		}
	}
}

type handlerResult struct {
	err      error
	panicked interface{}
}

// bufferedWriter holds a handler's response until it is known to be on time.
type bufferedWriter struct {
	header http.Header
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) Write(b []byte) (int, error) { return w.body.Write(b) }

func (w *bufferedWriter) WriteHeader(int) {}

func (w *bufferedWriter) flushTo(resp *echo.Response, status int) error {
	dst := resp.Header()
	for k, v := range w.header {
		dst[k] = v
	}
	resp.WriteHeader(status)
	_, err := resp.Write(w.body.Bytes())
	return err
}
