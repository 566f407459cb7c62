package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/shellvisr/internal/shell"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

func errEnvelope(kind, message string) gin.H {
	return gin.H{"ok": false, "error": gin.H{"kind": kind, "message": message}}
}

// writeError maps the supervisor's error taxonomy onto HTTP statuses:
// InvalidArgument 400, SandboxViolation 403, NotFound 404,
// CapacityExceeded 409, everything else (LaunchFailed included) 500.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shell.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, shell.ErrSandboxViolation):
		status = http.StatusForbidden
	case errors.Is(err, shell.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shell.ErrCapacityExceeded):
		status = http.StatusConflict
	}
	c.JSON(status, errEnvelope(shell.Kind(err), err.Error()))
}

func parseIntQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, errors.New("absent")
	}
	return strconv.Atoi(v)
}
