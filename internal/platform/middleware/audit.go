package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry records one access to patient data.
type AuditEntry struct {
	RequestID  string
	Resource   string
	PatientID  string
	Action     string // read, create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	StatusCode int
	Timestamp  time.Time
}

var auditPrefixes = []string{"/api/intake/", "/api/healthie/"}

// Audit emits a "phi_access" event for every request under /api/intake and
// /api/healthie, after the handler has run so the final status is known.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditablePath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				RequestID:  requestIDOf(c),
				Resource:   extractResource(req.URL.Path),
				PatientID:  extractPatientID(req.URL.Path),
				Action:     httpMethodToAction(req.Method),
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       req.URL.Path,
				Method:     req.Method,
				StatusCode: statusOf(c, err),
				Timestamp:  time.Now().UTC(),
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("resource", entry.Resource).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Str("user_agent", entry.UserAgent).
				Int("status", entry.StatusCode).
				Time("at", entry.Timestamp).
				Msg("phi_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	for _, p := range auditPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// apiSegments splits "/api/intake/draft/42" into ["intake", "draft", "42"].
func apiSegments(path string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, "/api/"), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// extractResource names the accessed collection:
//   - /api/intake/draft/42         -> intake.draft
//   - /api/intake/<uuid>           -> intake
//   - /api/healthie/patients/1/forms -> healthie.patients
func extractResource(path string) string {
	segs := apiSegments(path)
	switch len(segs) {
	case 0:
		return "unknown"
	case 1:
		return segs[0]
	}
	switch segs[1] {
	case "draft", "completed", "submit", "list", "search", "patient",
		"patients", "forms":
		return segs[0] + "." + segs[1]
	}
	return segs[0]
}

// extractPatientID returns the external patient id carried in the path, if
// the route has one.
func extractPatientID(path string) string {
	segs := apiSegments(path)
	if len(segs) < 3 {
		return ""
	}
	switch {
	case segs[0] == "intake" && (segs[1] == "draft" || segs[1] == "completed"),
		segs[0] == "healthie" && segs[1] == "patients" && segs[2] != "search":
		id, err := url.PathUnescape(segs[2])
		if err != nil {
			return segs[2]
		}
		return id
	}
	return ""
}
