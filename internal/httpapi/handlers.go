package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/cloudinary"
	"smartattend/internal/identity"
	"smartattend/internal/report"
	"smartattend/internal/session"
)

const maxPhotoBytes = 8 << 20

type proofView struct {
	Payload  string    `json:"payload"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

type sessionView struct {
	ID        string         `json:"id"`
	CourseID  string         `json:"course_id"`
	StartTime time.Time      `json:"start_time"`
	ExpiresAt time.Time      `json:"expires_at"`
	Status    session.Status `json:"status"`
	Proof     *proofView     `json:"proof,omitempty"`
}

func (s *Server) viewSession(sess *session.Session) sessionView {
	now := s.now()
	v := sessionView{
		ID:        sess.ID,
		CourseID:  sess.CourseID,
		StartTime: sess.StartTime,
		ExpiresAt: sess.ExpiresAt,
		Status:    sess.Status(now),
	}
	if p, ok := sess.CurrentProof(now); ok {
		v.Proof = &proofView{Payload: p.Encode(), Token: p.Token, IssuedAt: sess.TokenIssuedAt()}
	}
	return v
}

func (s *Server) issue(c *gin.Context, status int, u identity.User) {
	tokens, err := auth.Issue(u, s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.AccessTTL, s.cfg.RefreshTTL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, gin.H{"user": u, "tokens": tokens})
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		Email     string `json:"email" binding:"required"`
		Role      string `json:"role" binding:"required"`
		StudentID string `json:"student_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := s.deps.Directory.Register(req.Name, req.Email, identity.Role(strings.ToUpper(req.Role)), req.StudentID)
	if err != nil {
		writeError(c, err)
		return
	}
	s.deps.Checkin.Touch()
	log.WithFields(log.Fields{"user_id": u.ID, "role": u.Role}).Info("user registered")
	s.issue(c, http.StatusCreated, u)
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier" binding:"required"`
		Portal     string `json:"portal"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := s.deps.Directory.Login(req.Identifier, identity.Role(strings.ToUpper(req.Portal)))
	if err != nil {
		writeError(c, err)
		return
	}
	s.issue(c, http.StatusOK, u)
}

// extractCredentials accepts a multipart "file", a JSON data URL, or a JSON
// image_url that is already hosted.
func (s *Server) extractCredentials(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		imageURL string
		res      *cloudinary.UploadResult
		err      error
	)

	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			badRequest(c, "file field required")
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(io.LimitReader(file, maxPhotoBytes))
		if ferr != nil {
			badRequest(c, "read file failed")
			return
		}
		res, err = s.deps.Uploader.UploadBytes(ctx, data, header.Filename)
	} else {
		var body struct {
			Data     string `json:"data"`
			ImageURL string `json:"image_url"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil || (body.Data == "" && body.ImageURL == "") {
			badRequest(c, `provide {"data": "<base64 data URL>"} or {"image_url": "..."}`)
			return
		}
		if body.ImageURL != "" {
			imageURL = body.ImageURL
		} else {
			res, err = s.deps.Uploader.UploadDataURL(ctx, body.Data)
		}
	}

	if errors.Is(err, cloudinary.ErrNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured", "code": "unavailable"})
		return
	}
	if err != nil {
		log.Warnf("credential photo upload failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed", "code": "upstream"})
		return
	}
	if res != nil {
		imageURL = res.SecureURL
	}

	creds, err := s.deps.Insight.ExtractCredentials(ctx, imageURL)
	if err != nil {
		log.Warnf("credential extraction failed: %v", err)
		creds = nil
	}
	c.JSON(http.StatusOK, gin.H{"image_url": imageURL, "credentials": creds})
}

func (s *Server) listCourses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"courses": s.deps.Catalog.List()})
}

func (s *Server) updateCourse(c *gin.Context) {
	var req struct {
		TokenLifetimeMinutes int `json:"token_lifetime_minutes" binding:"required"`
		TokenRotationSeconds int `json:"token_rotation_seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	crs, err := s.deps.Checkin.UpdateCourse(c.Param("id"), req.TokenLifetimeMinutes, req.TokenRotationSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, crs)
}

func (s *Server) openSession(c *gin.Context) {
	sess, err := s.deps.Checkin.OpenSession(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.viewSession(sess))
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.deps.Checkin.Session(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.viewSession(sess))
}

func (s *Server) scan(c *gin.Context) {
	var req struct {
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	caller, _ := auth.Caller(c)
	rec, err := s.deps.Checkin.Scan(c.Request.Context(), caller, req.Payload)
	if errors.Is(err, attendance.ErrDuplicateSubmission) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "duplicate", "record": rec})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) overrideRecord(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id" binding:"required"`
		Status    string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.deps.Checkin.Override(c.Request.Context(), c.Param("id"), req.StudentID, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) records(c *gin.Context) ([]attendance.Record, bool) {
	recs, err := s.deps.Records.Records(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return recs, true
}

// studentStats accepts "me" for the caller's own key.
func (s *Server) studentStats(c *gin.Context) {
	key := c.Param("key")
	if key == "me" {
		caller, _ := auth.Caller(c)
		key = identity.Key(caller)
	}
	recs, ok := s.records(c)
	if !ok {
		return
	}
	st := report.ForStudent(recs, identity.NormalizeKey(key))
	if u, found := s.deps.Directory.ByKey(st.StudentKey); found {
		st.Name = u.Name
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) roster(c *gin.Context) {
	recs, ok := s.records(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": report.Roster(s.deps.Directory.Students(), recs)})
}

func (s *Server) courseStats(c *gin.Context) {
	recs, ok := s.records(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"courses":       report.ByCourse(s.deps.Catalog.List(), recs),
		"presence_rate": report.GlobalRate(recs),
		"total_records": len(recs),
	})
}

func (s *Server) courseReport(c *gin.Context) {
	crs, err := s.deps.Catalog.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	recs, ok := s.records(c)
	if !ok {
		return
	}
	text := s.deps.Insight.GenerateReport(c.Request.Context(), report.ForCourse(recs, crs.ID), crs.Label())
	c.JSON(http.StatusOK, gin.H{"course_id": crs.ID, "report": text})
}

func (s *Server) reset(c *gin.Context) {
	if err := s.deps.Checkin.ResetAll(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
