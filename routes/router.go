package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"polls-backend/config"
	"polls-backend/handlers"
	"polls-backend/middleware"
	"polls-backend/mq"
	"polls-backend/service"
	"polls-backend/web"
	"polls-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Server wraps the HTTP server.
type Server struct {
	*http.Server
}

// Dependencies are the long-lived components the routes are bound to.
type Dependencies struct {
	Config  config.Config
	DB      *gorm.DB
	Service service.PollService
	Broker  mq.Broker
	Hub     *websocket.Hub
	Limiter *middleware.VoteRateLimiter
	Logger  *slog.Logger
}

// SetupRouter builds the gin engine with every route mounted.
func SetupRouter(deps Dependencies) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mount := deps.Config.MountPath

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: !allowsAnyOrigin(deps.Config.CORSAllowOrigins),
		MaxAge:           12 * time.Hour,
	}))
	router.SetHTMLTemplate(tmpl)
	router.StaticFS("/static", web.Static())

	pages := handlers.NewPollHandler(deps.Service, mount)
	router.NoRoute(pages.NotFound)

	if mount != "" {
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, mount+"/")
		})
	}

	polls := router.Group(mount)
	{
		polls.GET("/", pages.Index)
		polls.GET("/:id/", pages.Detail)
		polls.GET("/:id/results/", pages.Results)
		polls.POST("/:id/vote/", deps.Limiter.Middleware(), pages.Vote)
		if deps.Hub != nil {
			live := websocket.NewHandler(deps.Hub, deps.Config.CORSAllowOrigins)
			polls.GET("/:id/results/ws", live.ServeResults)
		}
	}

	api := handlers.NewAPIHandler(deps.Service)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/questions", api.ListQuestions)
		apiGroup.GET("/questions/:id", api.GetQuestion)
		apiGroup.GET("/questions/:id/results", api.GetResults)
		apiGroup.POST("/questions/:id/vote", deps.Limiter.Middleware(), api.Vote)
	}

	health := handlers.NewHealthHandler(deps.DB, deps.Broker, deps.Limiter)
	router.GET("/health", health.HealthCheck)
	router.GET("/status", health.SystemStatus)

	return router, nil
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// StartServer serves router on port in a goroutine. A listen failure is
// delivered on the returned channel.
func StartServer(router *gin.Engine, port string) (*Server, <-chan error) {
	addr := ":" + port
	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return srv, errCh
}
