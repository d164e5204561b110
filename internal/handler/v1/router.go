package v1

import (
	"net/http"

	"github.com/dmehra2102/prod-golang-projects/medlink/config"
	"github.com/dmehra2102/prod-golang-projects/medlink/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/medlink/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	Requests *RequestHandler
	Doctors  *DoctorHandler
	Streams  *StreamHandler
}

func NewRouter(cfg *config.Config, tokens TokenValidator, h Handlers, m *metrics.Collector, log *zap.Logger) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		Recovery(log),
		RequestID(),
		Logger(log),
		Metrics(m),
		CORS(cfg.CORS),
		RateLimit(cfg.RateLimit),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": cfg.App.Version})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := r.Group("/v1", Auth(tokens))

	patient := RequireRole(domain.RolePatient)
	doctor := RequireRole(domain.RoleDoctor)

	requests := v1.Group("/requests")
	{
		requests.POST("", patient, h.Requests.Create)
		requests.GET("/pending", RequireRole(domain.RoleDoctor, domain.RoleAdmin), h.Requests.ListPending)
		requests.GET("/:id", h.Requests.Get)
		requests.POST("/:id/accept", doctor, AcceptRateLimit(cfg.RateLimit.AcceptPerMinute), h.Requests.Accept)
		requests.POST("/:id/status", doctor, h.Requests.Advance)
		requests.POST("/:id/cancel", patient, h.Requests.Cancel)
		requests.POST("/:id/review", patient, h.Requests.SubmitReview)
		requests.GET("/:id/review", h.Requests.GetReview)
		requests.GET("/:id/stream", h.Streams.Request)
	}

	doctors := v1.Group("/doctors")
	{
		doctors.PUT("/me/presence", doctor, h.Doctors.UpdatePresence)
		doctors.GET("/me/feed", doctor, h.Streams.Feed)
		doctors.GET("/nearby", RequireRole(domain.RolePatient, domain.RoleAdmin), h.Doctors.Nearby)
	}

	return r
}
