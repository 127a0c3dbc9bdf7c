package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"smartattend/internal/attendance"
	"smartattend/internal/checkin"
	"smartattend/internal/course"
	"smartattend/internal/identity"
	"smartattend/internal/scan"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{scan.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{scan.ErrSessionInactive, http.StatusGone, "session_inactive"},
	{scan.ErrTokenMismatch, http.StatusConflict, "token_mismatch"},
	{scan.ErrRoleMismatch, http.StatusForbidden, "role_mismatch"},
	{attendance.ErrDuplicateSubmission, http.StatusConflict, "duplicate"},
	{attendance.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{checkin.ErrMissingStudent, http.StatusBadRequest, "missing_student"},
	{checkin.ErrUnknownSession, http.StatusNotFound, "unknown_session"},
	{course.ErrUnknownCourse, http.StatusNotFound, "unknown_course"},
	{course.ErrInvalidSettings, http.StatusBadRequest, "invalid_settings"},
	{identity.ErrMissingFields, http.StatusBadRequest, "missing_fields"},
	{identity.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{identity.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{identity.ErrStudentIDTaken, http.StatusConflict, "student_id_taken"},
	{identity.ErrNotFound, http.StatusUnauthorized, "account_not_found"},
	{identity.ErrWrongPortal, http.StatusForbidden, "wrong_portal"},
}

// writeError maps engine errors to a status and a stable code. Unknown errors
// are logged and reported as 500 without detail.
func writeError(c *gin.Context, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": err.Error(), "code": m.code})
			return
		}
	}
	log.WithField("path", c.FullPath()).Errorf("request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}
