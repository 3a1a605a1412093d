package router

import (
	"github.com/RigelNana/media-service/config"
	"github.com/RigelNana/media-service/handler"
	"github.com/RigelNana/media-service/middleware"
	"github.com/RigelNana/media-service/models"
	ginMetrics "github.com/RigelNana/media-service/pkg/metrics/gin"
	"github.com/RigelNana/media-service/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const serviceName = "media-service"

// Deps is everything the route table needs.
type Deps struct {
	Config   *config.Config
	Service  service.MediaService
	Uploader *service.Uploader
	Auth     middleware.Authenticator
	Logger   *logrus.Logger
	// UploadDir is served under /uploads when non-empty.
	UploadDir string
}

var kindPrefixes = map[models.Kind]string{
	models.KindGallery: "/api/gallery",
	models.KindProject: "/api/projects",
}

func Setup(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(d.Logger),
		middleware.CORS(d.Config.Server.CORSOrigins),
		ginMetrics.PrometheusMiddleware(serviceName),
		middleware.Timeout(d.Config.Server.RequestTimeout),
	)

	health := handler.NewHealthHandler(d.Service, d.Uploader.Store().Provider(), d.Logger)
	r.GET("/", health.Welcome)
	r.GET("/health", health.HealthCheck)

	if d.UploadDir != "" {
		r.Static("/uploads", d.UploadDir)
	}

	opts := handler.Options{
		MaxUploadBytes:  d.Uploader.MaxBytes(),
		TooLargeMessage: d.Uploader.TooLargeMessage(),
		Development:     d.Config.IsDevelopment(),
	}
	auth := middleware.RequireAuth(d.Auth)

	for _, kind := range models.Kinds() {
		h := handler.NewMediaHandler(kind, d.Service, opts, d.Logger)
		api := r.Group(kindPrefixes[kind])
		{
			api.GET("", h.List)
			api.GET("/:id", h.Get)
			api.POST("", auth, h.Create)
			api.POST("/cleanup", auth, h.Cleanup)
			api.PUT("/:id", auth, h.Update)
			api.DELETE("/:id", auth, h.Delete)
			api.DELETE("", auth, h.DeleteAll)
		}
	}

	r.NoRoute(handler.NotFound)
	return r
}
