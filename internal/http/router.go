package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/chonlathan-cloud/ProjectMIABackend/internal/config"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/http/handler"
	"github.com/chonlathan-cloud/ProjectMIABackend/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, inboxHandler *handler.InboxHandler, authMiddleware *middleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := r.Group("/auth")
	{
		lineGroup := authGroup.Group("/line")
		{
			lineGroup.POST("/bootstrap", authHandler.Bootstrap)
			lineGroup.POST("/login-url", authHandler.LoginURL)
			lineGroup.GET("/callback", authHandler.Callback)
			lineGroup.POST("/select", authHandler.Select)
			lineGroup.POST("/firebase", authHandler.FirebaseBridge)
		}
		authGroup.POST("/line", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.GET("/me", authMiddleware.Authenticate, authHandler.Me)
	}

	inbox := r.Group("/inbox", authMiddleware.Authenticate)
	{
		inbox.GET("/customers", inboxHandler.Customers)
		inbox.GET("/history/:customer_id", inboxHandler.History)
		inbox.POST("/send/:customer_id", inboxHandler.Send)
		inbox.GET("/stream/:customer_id", inboxHandler.Stream)
	}

	return r
}
