package httpapi

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classroll/internal/absence"
	"classroll/internal/apperr"
	"classroll/internal/attendance"
	"classroll/internal/auth"
	"classroll/internal/blob"
	"classroll/internal/policy"
	"classroll/internal/roster"
)

const dayLayout = "2006-01-02"

// Handler carries the services behind the HTTP routes.
type Handler struct {
	auth        *auth.Service
	att         *attendance.Service
	attRepo     *attendance.Repository
	abs         *absence.Service
	absRepo     *absence.Repository
	rosterRepo  *roster.Repository
	rosterCache *roster.Cache
	blob        *blob.Client // nil when Cloudinary not configured
}

// New creates a handler.
func New(authSvc *auth.Service, att *attendance.Service, attRepo *attendance.Repository,
	abs *absence.Service, absRepo *absence.Repository,
	rosterRepo *roster.Repository, rosterCache *roster.Cache, blobClient *blob.Client) *Handler {
	return &Handler{
		auth:        authSvc,
		att:         att,
		attRepo:     attRepo,
		abs:         abs,
		absRepo:     absRepo,
		rosterRepo:  rosterRepo,
		rosterCache: rosterCache,
		blob:        blobClient,
	}
}

// Register mounts all authenticated routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/classes", h.ListClasses)
	g.GET("/classes/:id/roster", h.GetRoster)
	g.POST("/classes/:id/students", h.EnrollStudent)
	g.GET("/students", h.ListStudents)
	g.POST("/students", h.CreateStudent)
	g.PUT("/attendance", h.SaveAttendance)
	g.GET("/attendance", h.QueryAttendance)
	g.POST("/absences", h.SubmitAbsence)
	g.GET("/absences", h.QueryAbsences)
	g.POST("/absences/:id/approve", h.ApproveAbsence)
	g.POST("/absences/:id/reject", h.RejectAbsence)
	g.POST("/uploads", h.UploadAttachment)
	g.GET("/dashboard", h.Dashboard)
}

// renderErr maps the error taxonomy onto HTTP statuses and a uniform
// {error_kind, message} body.
func renderErr(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindInvalidReference:
		status = http.StatusUnprocessableEntity
	case apperr.KindInvalidTransition:
		status = http.StatusConflict
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindStorage:
		status = http.StatusBadGateway
		log.Printf("storage failure: %v", err)
	}
	c.JSON(status, gin.H{"error_kind": string(kind), "message": apperr.MessageOf(err)})
}

// ---------- Auth ----------

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a token pair plus the user profile.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": err.Error()})
		return
	}
	usr, tokens, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error_kind": "unauthorized", "message": "unknown email or wrong password"})
			return
		}
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":          usr,
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// ---------- Classes & students ----------

// ListClasses returns all classes.
func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.rosterRepo.ListClasses(c.Request.Context())
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

// GetRoster returns the student ids of one class. Staff only: students are
// denied by the attendance view policy for other students.
func (h *Handler) GetRoster(c *gin.Context) {
	p := auth.PrincipalFrom(c)
	if !policy.CanPerform(p, policy.ViewAttendance, policy.Target{}) {
		renderErr(c, apperr.Forbidden())
		return
	}
	members, err := h.rosterCache.GetRoster(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderErr(c, err)
		return
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	c.JSON(http.StatusOK, gin.H{"class_id": c.Param("id"), "student_ids": ids})
}

type enrollRequest struct {
	StudentID string `json:"student_id" binding:"required"`
}

// EnrollStudent adds a student to a class roster.
func (h *Handler) EnrollStudent(c *gin.Context) {
	p := auth.PrincipalFrom(c)
	if !policy.CanPerform(p, policy.ManageStudents, policy.Target{ClassID: c.Param("id")}) {
		renderErr(c, apperr.Forbidden())
		return
	}
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": err.Error()})
		return
	}
	if err := h.rosterRepo.Enroll(c.Request.Context(), c.Param("id"), req.StudentID); err != nil {
		renderErr(c, err)
		return
	}
	h.rosterCache.Invalidate(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusNoContent, nil)
}

// ListStudents returns student accounts, optionally filtered by class.
func (h *Handler) ListStudents(c *gin.Context) {
	p := auth.PrincipalFrom(c)
	if !policy.CanPerform(p, policy.ManageStudents, policy.Target{}) {
		renderErr(c, apperr.Forbidden())
		return
	}
	students, err := h.rosterRepo.ListStudents(c.Request.Context(), c.Query("class_id"))
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

type createStudentRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// CreateStudent creates a student account.
func (h *Handler) CreateStudent(c *gin.Context) {
	p := auth.PrincipalFrom(c)
	if !policy.CanPerform(p, policy.ManageStudents, policy.Target{}) {
		renderErr(c, apperr.Forbidden())
		return
	}
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": err.Error()})
		return
	}
	usr, err := h.auth.CreateUser(c.Request.Context(), req.Name, req.Email, req.Password, policy.RoleStudent)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, usr)
}

// ---------- Attendance ----------

type saveAttendanceRequest struct {
	ClassID string             `json:"class_id" binding:"required"`
	Date    string             `json:"date" binding:"required"`
	Entries []attendance.Entry `json:"entries" binding:"required"`
}

// SaveAttendance upserts the sheet for one class and day.
func (h *Handler) SaveAttendance(c *gin.Context) {
	var req saveAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": err.Error()})
		return
	}
	day, err := time.Parse(dayLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": "date must be YYYY-MM-DD"})
		return
	}
	n, err := h.att.SaveSheet(c.Request.Context(), auth.PrincipalFrom(c), req.ClassID, day, req.Entries)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"written": n})
}

// QueryAttendance lists attendance records matching the query filters.
func (h *Handler) QueryAttendance(c *gin.Context) {
	f := attendance.Filter{
		StudentID: c.Query("student_id"),
		ClassID:   c.Query("class_id"),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(dayLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": "from must be YYYY-MM-DD"})
			return
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(dayLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": "to must be YYYY-MM-DD"})
			return
		}
		f.To = t
	}
	records, err := h.att.Query(c.Request.Context(), auth.PrincipalFrom(c), f)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ---------- Absences ----------

type submitAbsenceRequest struct {
	Date          string  `json:"date" binding:"required"`
	Reason        string  `json:"reason" binding:"required"`
	AttachmentURL *string `json:"attachment_url"`
}

// SubmitAbsence creates a pending explanation for the caller's own absence.
func (h *Handler) SubmitAbsence(c *gin.Context) {
	var req submitAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": err.Error()})
		return
	}
	day, err := time.Parse(dayLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": "date must be YYYY-MM-DD"})
		return
	}
	exp, err := h.abs.Submit(c.Request.Context(), auth.PrincipalFrom(c), day, req.Reason, req.AttachmentURL)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, exp)
}

// QueryAbsences lists explanations matching the query filters.
func (h *Handler) QueryAbsences(c *gin.Context) {
	f := absence.Filter{
		StudentID: c.Query("student_id"),
		Status:    absence.Status(c.Query("status")),
	}
	exps, err := h.abs.Query(c.Request.Context(), auth.PrincipalFrom(c), f)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"absences": exps})
}

type decisionRequest struct {
	Comment string `json:"comment"`
}

// ApproveAbsence approves a pending explanation.
func (h *Handler) ApproveAbsence(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": err.Error()})
		return
	}
	var comment *string
	if req.Comment != "" {
		comment = &req.Comment
	}
	exp, err := h.abs.Approve(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), comment)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

// RejectAbsence rejects a pending explanation; the comment is mandatory.
func (h *Handler) RejectAbsence(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": err.Error()})
		return
	}
	exp, err := h.abs.Reject(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), req.Comment)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

// ---------- Attachments ----------

// UploadAttachment accepts a multipart file, validates it, and stores it in
// Cloudinary, returning the hosted URL for use in an absence submission.
func (h *Handler) UploadAttachment(c *gin.Context) {
	if h.blob == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error_kind": string(apperr.KindStorage), "message": "attachment storage not configured"})
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error_kind": string(apperr.KindValidation), "message": "file field required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, blob.MaxAttachmentBytes+1))
	if err != nil {
		renderErr(c, apperr.Wrap(apperr.KindStorage, "read file failed", err))
		return
	}

	result, err := h.blob.Upload(data, header.Filename)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": result.SecureURL, "bytes": result.Bytes})
}

// ---------- Dashboard ----------

// Dashboard returns the counters behind the landing page: attendance totals
// and pending explanations of the caller's scope.
func (h *Handler) Dashboard(c *gin.Context) {
	p := auth.PrincipalFrom(c)
	scope := ""
	if p.Role == policy.RoleStudent {
		scope = p.ID
	} else if !policy.CanPerform(p, policy.ViewAttendance, policy.Target{}) {
		renderErr(c, apperr.Forbidden())
		return
	}

	counts, err := h.attRepo.CountByStatus(c.Request.Context(), scope)
	if err != nil {
		renderErr(c, err)
		return
	}
	pending, err := h.absRepo.CountPending(c.Request.Context(), scope)
	if err != nil {
		renderErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"present":          counts[attendance.StatusPresent],
		"absent":           counts[attendance.StatusAbsent],
		"pending_absences": pending,
	})
}
