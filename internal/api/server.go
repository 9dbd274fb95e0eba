package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"checkin/internal/auth"
	"checkin/internal/authz"
	"checkin/internal/checkin"
	"checkin/internal/config"
	"checkin/internal/httpmiddleware"
	"checkin/internal/identity"
	"checkin/internal/ledger"
	"checkin/internal/roster"
	"checkin/internal/session"
	"checkin/internal/store"
	"checkin/internal/token"
	"checkin/internal/tokenlog"
)

var checkinRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "checkin_requests_total",
	Help: "Check-in attempts by outcome.",
}, []string{"status"})

// Checkin runs one redemption attempt.
type Checkin interface {
	Process(ctx context.Context, scan checkin.Scan) (*checkin.Outcome, error)
}

// SessionRegistry is the session store as the handlers see it.
type SessionRegistry interface {
	Create(ctx context.Context, keyword string, p session.CreateParams) (int64, error)
	FindActiveByKeyword(ctx context.Context, courseID int64, keyword string) (*session.Session, error)
	ListByCourse(ctx context.Context, courseID int64) ([]session.Session, error)
	Delete(ctx context.Context, courseID, sessionID int64) error
}

// Authorizer answers the per-route permission questions.
type Authorizer interface {
	CanRedeem(ctx context.Context, userID string, courseID int64) (bool, error)
	CanManageSessions(ctx context.Context, userID string, courseID int64) (bool, error)
	IsGlobalAdmin(ctx context.Context, userID string) (bool, error)
}

// Roster reads enrollments for the token issuance path.
type Roster interface {
	FindByStudent(ctx context.Context, courseID int64, studentID string) (*roster.Enrollment, error)
}

// LedgerReader exposes redemption records to reporting.
type LedgerReader interface {
	ListBySession(ctx context.Context, sessionID int64) ([]ledger.Record, error)
}

// Users resolves account names for dev-login.
type Users interface {
	Resolve(ctx context.Context, accounts ...string) (*identity.User, error)
}

// TokenLogStore lists persisted token logs for the admin view.
type TokenLogStore interface {
	List(ctx context.Context, limit int) ([]tokenlog.Entry, error)
}

// Server carries the HTTP surface and its collaborators.
type Server struct {
	Cfg      config.App
	Checkin  Checkin
	Sessions SessionRegistry
	Gate     Authorizer
	Roster   Roster
	Ledger   LedgerReader
	Users    Users
	Codec    *token.Codec
	LogQueue tokenlog.Queue
	Logs     TokenLogStore
	Limiter  httpmiddleware.Limiter

	// Optional; used only by healthz.
	DB    *store.DB
	Redis *store.Redis
}

// Router builds the gin engine with the full middleware chain and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	if s.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(s.Limiter))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.handleHealthz)

	required := auth.Require(s.Cfg.JWTSigningKey, s.Cfg.JWTIssuer)
	optional := auth.Optional(s.Cfg.JWTSigningKey, s.Cfg.JWTIssuer)

	if s.Cfg.Env != "production" && s.Cfg.Env != "prod" {
		r.POST("/v1/auth/dev-login", s.handleDevLogin)
	}

	r.POST("/v1/checkin", optional, s.handleCheckin)
	r.POST("/v1/courses/:courseId/sessions/:sessionId/checkin", optional, s.handleCheckin)

	r.POST("/v1/internal/log-token", s.handleLogToken)

	v1 := r.Group("/v1", required)
	v1.POST("/qr", s.handleGenerateQR)
	v1.POST("/courses/:courseId/sessions", s.handleCreateSession)
	v1.GET("/courses/:courseId/sessions", s.handleListSessions)
	v1.DELETE("/courses/:courseId/sessions/:sessionId", s.handleDeleteSession)
	v1.GET("/courses/:courseId/sessions/:sessionId/attendance", s.handleListAttendance)
	v1.GET("/admin/token-logs", s.handleListTokenLogs)

	return r
}

func (s *Server) handleHealthz(c *gin.Context) {
	redisHealthy := s.Redis.Healthy(c.Request.Context())
	dbHealthy := s.DB != nil && s.DB.Client != nil && s.DB.Client.PingContext(c.Request.Context()) == nil
	status := http.StatusOK
	if !redisHealthy || !dbHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
}

// handleCheckin serves both the global webhook and the session-scoped route.
// The body is kept verbatim: it becomes the audit payload on a PRESENT write.
func (s *Server) handleCheckin(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	var req struct {
		QR         string `json:"qr"`
		ITAccount  string `json:"it_account"`
		CMUAccount string `json:"cmuAccount"`
		Email      string `json:"email"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
	}

	scan := checkin.Scan{
		QR:         req.QR,
		ITAccount:  req.ITAccount,
		CMUAccount: req.CMUAccount,
		Email:      req.Email,
		RawBody:    string(body),
		IP:         c.ClientIP(),
		DeviceInfo: c.Request.UserAgent(),
	}
	if claims, ok := auth.FromContext(c); ok {
		scan.Caller = &identity.User{ID: claims.Subject, Account: claims.Account}
	}
	if v := c.Param("courseId"); v != "" {
		scan.CourseID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := c.Param("sessionId"); v != "" {
		scan.SessionID, _ = strconv.ParseInt(v, 10, 64)
	}

	out, err := s.Checkin.Process(c.Request.Context(), scan)
	if err != nil {
		s.writeCheckinError(c, err)
		return
	}
	checkinRequests.WithLabelValues(out.Status).Inc()
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": out.Status})
}

func (s *Server) writeCheckinError(c *gin.Context, err error) {
	var cerr *checkin.Error
	if errors.As(err, &cerr) {
		label := "error"
		if cerr.Status != "" {
			label = cerr.Status
		}
		checkinRequests.WithLabelValues(label).Inc()
		body := gin.H{"error": cerr.Message}
		if cerr.Status != "" {
			body["status"] = cerr.Status
		}
		c.JSON(cerr.HTTPStatus(), body)
		return
	}
	log.Printf("checkin failed: %v", err)
	checkinRequests.WithLabelValues("internal").Inc()
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// handleGenerateQR issues the student's credential for the active session
// matching a keyword. The credential is deterministic, so the client may call
// this repeatedly and render the same QR.
func (s *Server) handleGenerateQR(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req struct {
		CourseID int64  `json:"courseId"`
		Keyword  string `json:"keyword"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.CourseID <= 0 || req.Keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing courseId or keyword"})
		return
	}

	enrollment, err := s.Roster.FindByStudent(c.Request.Context(), req.CourseID, claims.Subject)
	if err != nil {
		if errors.Is(err, roster.ErrNotEnrolled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not enrolled in this course"})
			return
		}
		s.internalError(c, err)
		return
	}

	sess, err := s.Sessions.FindActiveByKeyword(c.Request.Context(), req.CourseID, req.Keyword)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No session found with this keyword"})
			return
		}
		s.internalError(c, err)
		return
	}

	qrToken, err := s.Codec.Generate(enrollment.StudentCode, req.CourseID, sess.Keyword, sess.ID)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"qrToken":     qrToken,
		"session":     sess,
		"studentCode": enrollment.StudentCode,
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	var req struct {
		Keyword          string     `json:"keyword"`
		Name             string     `json:"name"`
		ClassIndex       *int       `json:"classIndex"`
		Date             *time.Time `json:"date"`
		StartTime        *time.Time `json:"startTime"`
		EndTime          *time.Time `json:"endTime"`
		ExpiresInMinutes int        `json:"expiresInMinutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyword is required"})
		return
	}

	if !s.requireManage(c, claims.Subject, courseID) {
		return
	}

	params := session.CreateParams{
		CourseID:     courseID,
		Name:         req.Name,
		ClassIndex:   req.ClassIndex,
		GraceMinutes: req.ExpiresInMinutes,
	}
	if req.Date != nil {
		params.Date = *req.Date
	}
	if req.StartTime != nil {
		params.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		params.EndTime = *req.EndTime
	}

	id, err := s.Sessions.Create(c.Request.Context(), req.Keyword, params)
	if err != nil {
		if errors.Is(err, session.ErrConflict) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Keyword \"" + req.Keyword + "\" is currently active in another session. Please wait for it to expire or use a different keyword.",
			})
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": id})
}

func (s *Server) handleListSessions(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	if !s.requireStaff(c, claims.Subject, courseID) {
		return
	}
	sessions, err := s.Sessions.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	sessionID, ok := pathID(c, "sessionId")
	if !ok {
		return
	}
	if !s.requireManage(c, claims.Subject, courseID) {
		return
	}
	if err := s.Sessions.Delete(c.Request.Context(), courseID, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleListAttendance(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	courseID, ok := pathID(c, "courseId")
	if !ok {
		return
	}
	sessionID, ok := pathID(c, "sessionId")
	if !ok {
		return
	}
	if !s.requireStaff(c, claims.Subject, courseID) {
		return
	}
	records, err := s.Ledger.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": records})
}

// handleLogToken accepts forensic token sightings and hands them to the
// queue; persistence happens in the worker.
func (s *Server) handleLogToken(c *gin.Context) {
	var req tokenlog.Entry
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token is required"})
		return
	}
	if req.IP == "" {
		req.IP = c.ClientIP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}
	req.LoggedAt = time.Now().UTC()
	if err := s.LogQueue.Publish(c.Request.Context(), req); err != nil {
		log.Printf("token log publish failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleListTokenLogs(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	isAdmin, err := s.Gate.IsGlobalAdmin(c.Request.Context(), claims.Subject)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	entries, err := s.Logs.List(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

// handleDevLogin issues a bearer token for a known account. Registered only
// outside production.
func (s *Server) handleDevLogin(c *gin.Context) {
	var req struct {
		Account string `json:"account" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := s.Users.Resolve(c.Request.Context(), req.Account)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Account not found"})
			return
		}
		s.internalError(c, err)
		return
	}
	tok, exp, err := auth.Issue(user.ID, user.Account, s.Cfg.JWTIssuer, s.Cfg.JWTSigningKey, s.Cfg.AccessTTL)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "token": tok, "expiresAt": exp.Unix()})
}

func (s *Server) requireManage(c *gin.Context, userID string, courseID int64) bool {
	allowed, err := s.Gate.CanManageSessions(c.Request.Context(), userID, courseID)
	if err != nil {
		if errors.Is(err, authz.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
			return false
		}
		s.internalError(c, err)
		return false
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Course not found or you are not authorized"})
		return false
	}
	return true
}

func (s *Server) requireStaff(c *gin.Context, userID string, courseID int64) bool {
	allowed, err := s.Gate.CanRedeem(c.Request.Context(), userID, courseID)
	if err != nil {
		if errors.Is(err, authz.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
			return false
		}
		s.internalError(c, err)
		return false
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return false
	}
	return true
}

func (s *Server) internalError(c *gin.Context, err error) {
	log.Printf("request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
