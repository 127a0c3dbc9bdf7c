// Package httpapi exposes the attendance engine over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/checkin"
	"smartattend/internal/cloudinary"
	"smartattend/internal/course"
	"smartattend/internal/httpmiddleware"
	"smartattend/internal/identity"
	"smartattend/internal/insight"
)

// Config holds the HTTP-facing settings.
type Config struct {
	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	RateLimitPerMin int
	// AllowedOrigins lists the browser origins allowed to call the API and
	// open proof streams. "*" allows any origin.
	AllowedOrigins  []string
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the components served by the API. Uploader, Insight and Gatherer
// may be nil.
type Deps struct {
	Directory *identity.Directory
	Catalog   *course.Catalog
	Checkin   *checkin.Service
	Records   *attendance.Service
	Insight   *insight.Client
	Uploader  *cloudinary.Client
	Gatherer  prometheus.Gatherer
	Health    map[string]HealthCheck
}

// Server owns the routes.
type Server struct {
	cfg        Config
	deps       Deps
	limiter    *httpmiddleware.TokenBucket
	upgrader   websocket.Upgrader
	now        func() time.Time
	streamPoll time.Duration
}

// New builds a server.
func New(cfg Config, deps Deps) *Server {
	if deps.Insight == nil {
		deps.Insight = insight.New("", true)
	}
	s := &Server{
		cfg:        cfg,
		deps:       deps,
		limiter:    httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin),
		now:        time.Now,
		streamPoll: time.Second,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler wraps the router with CORS handling for the configured origins.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(s.Router())
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(securityHeaders())

	metricsHandler := promhttp.Handler()
	if s.deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})
	}
	r.GET("/metrics", gin.WrapH(metricsHandler))
	r.GET("/healthz", s.healthz)

	public := r.Group("/v1", s.limiter.Middleware(httpmiddleware.ClientIP))
	public.POST("/users/register", s.register)
	public.POST("/users/login", s.login)
	public.POST("/credentials/extract", s.extractCredentials)

	v1 := r.Group("/v1",
		auth.UserAuth(s.cfg.JWTSigningKey, s.cfg.JWTIssuer, s.deps.Directory),
		s.limiter.Middleware(callerOrIP),
	)
	v1.GET("/courses", s.listCourses)
	v1.GET("/courses/stats", s.courseStats)
	v1.PUT("/courses/:id/settings", s.updateCourse)
	v1.POST("/courses/:id/sessions", s.openSession)
	v1.POST("/courses/:id/report", s.courseReport)
	v1.GET("/sessions/:id", s.getSession)
	v1.GET("/sessions/:id/stream", s.streamSession)
	v1.PUT("/sessions/:id/records", s.overrideRecord)
	v1.POST("/scans", s.scan)
	v1.GET("/students/:key/stats", s.studentStats)
	v1.GET("/roster", s.roster)
	v1.POST("/admin/reset", s.reset)

	return r
}

// PruneLimits evicts idle rate-limit buckets every interval until ctx is done.
func (s *Server) PruneLimits(ctx context.Context, interval time.Duration) error {
	return s.limiter.Run(ctx, interval)
}

// checkOrigin admits websocket upgrades without an Origin header (non-browser
// clients) or from an allowed origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range s.deps.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func callerOrIP(c *gin.Context) string {
	if u, ok := auth.Caller(c); ok {
		return "user:" + u.ID
	}
	return "ip:" + httpmiddleware.ClientIP(c)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		// proofs are time-limited and must never be served from a cache
		c.Header("Cache-Control", "no-store")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
