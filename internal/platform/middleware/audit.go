package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/thyrotrack/thyrotrack/internal/platform/auth"
)

// AuditEntry describes one change made through the records API: who changed
// which collection, how, and with what result.
type AuditEntry struct {
	Subject    string
	Collection string
	RecordID   string
	Action     string // create, update, delete, import
	Method     string
	Path       string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordChange(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordChange(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every mutating request under prefix. Reads are not audited;
// the request log already covers them.
func Audit(logger zerolog.Logger, prefix string, recorders ...AuditRecorder) echo.MiddlewareFunc {
	prefix = strings.TrimSuffix(prefix, "/") + "/"

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := methodToAction(req.Method)
			if action == "" || !strings.HasPrefix(req.URL.Path, prefix) {
				return next(c)
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			collection, recordID := splitResourcePath(strings.TrimPrefix(req.URL.Path, prefix))
			if collection == "import" {
				action = "import"
				collection = "*"
			}

			entry := AuditEntry{
				Subject:    auth.SubjectFromContext(req.Context()),
				Collection: collection,
				RecordID:   recordID,
				Action:     action,
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				RequestID:  requestID(c),
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordChange(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("subject", entry.Subject).
				Str("collection", entry.Collection).
				Str("record_id", entry.RecordID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("record_change")

			return nil
		}
	}
}

func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// splitResourcePath turns "vitals/abc" into ("vitals", "abc").
func splitResourcePath(rest string) (collection, id string) {
	segments := strings.SplitN(strings.Trim(rest, "/"), "/", 3)
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	collection = segments[0]
	if len(segments) > 1 {
		id = segments[1]
	}
	return collection, id
}
