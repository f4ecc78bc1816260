// Package httpapi wires the HTTP transport (Gin) to the broker's services,
// middleware, and handlers: the visitor-facing chat endpoints, the
// authenticated operator console surface, the WebSocket messaging channels,
// and the SSE notification stream.
//
// Middleware ordering is safety-first: tracing wraps everything, then the
// correlation ID, then the redacting access logger, then panic recovery, so
// failures always carry a request id and reach the logs scrubbed.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/venturing/go-livechat-backend/internal/config"
	"github.com/venturing/go-livechat-backend/internal/http/handlers"
	"github.com/venturing/go-livechat-backend/internal/http/middleware"
	"github.com/venturing/go-livechat-backend/internal/services"
	"github.com/venturing/go-livechat-backend/internal/sse"
	"github.com/venturing/go-livechat-backend/internal/ws"
)

// Deps carries everything the router needs. Services are constructed by the
// caller (cmd/server) so tests can substitute their own wiring.
type Deps struct {
	DB       *gorm.DB
	Requests *services.RequestService
	Sessions *services.SessionService
	Feedback *services.FeedbackService
	Notifs   *services.NotificationService
	Channel  *ws.Server
	Stream   *sse.Broker
}

// streamBacklogLimit caps how many stored notifications a fresh stream
// subscriber gets replayed.
const streamBacklogLimit = 50

// RegisterRoutes attaches all middleware and endpoints to the engine.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// Trace all HTTP requests.
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// Correlate requests and logs, scrub PII, recover panics.
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())

	// Global body size limit (64 KiB; the largest payload is a chat form).
	r.Use(limitBody(64 << 10))

	// Prometheus metrics and exposition endpoint.
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Compress list responses. SSE and WebSocket upgrades are left alone.
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/admin/notifications/stream", "/user/notifications/stream", "/chat/ws"})))

	// Token-bucket rate limiter per agent/IP.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// CORS: allow all when no allowlist is configured (the widget is
	// embedded on arbitrary customer pages), otherwise enforce it.
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks share the error envelope.
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(deps.Requests, deps.Sessions, deps.Feedback, deps.Notifs)
	verify := middleware.StaticTokenVerifier(cfg.AuthToken)

	// Visitor surface: anonymous, rate limited like everything else.
	r.POST("/chat/request", h.CreateChatRequest)
	r.POST("/chat/request/cancel", h.CancelChatRequest)
	r.GET("/chat/categories", h.ListChatCategories)
	r.GET("/chat/subcategories/:category_id", h.ListChatSubcategories)
	r.POST("/chat/sessions/:id/end", h.EndSession)
	r.GET("/chat/sessions/:id/messages/public", h.ListSessionMessagesPublic)
	r.POST("/chat/feedback", h.LeaveFeedback)
	r.GET("/chat/ws/:participant_id", deps.Channel.ServeVisitor)

	// Operator console surface: bearer token required.
	agent := r.Group("", middleware.RequireAuth(verify))
	{
		agent.GET("/chat/requests", h.ListChatRequests)
		agent.GET("/chat/requests/rejected", h.ListRejectedChatRequests)
		agent.POST("/chat/requests/:id/accept", h.AcceptChatRequest)
		agent.POST("/chat/requests/:id/reject", h.RejectChatRequest)

		agent.GET("/chat/sessions", h.ListActiveSessions)
		agent.GET("/chat/sessions/all", h.ListAllSessions)
		agent.GET("/chat/sessions/total", h.CountSessions)
		agent.GET("/chat/sessions/:id/messages", h.ListSessionMessages)

		agent.GET("/notifications", h.ListNotifications)
		agent.GET("/notifications/unread-count", h.CountUnreadNotifications)
		agent.POST("/notifications/:id/read", h.MarkNotificationRead)
		agent.DELETE("/notifications/:id", h.DeleteNotification)
		agent.DELETE("/notifications", h.ClearNotifications)

		agent.GET("/chat/ws/support/:agent_id", deps.Channel.ServeAgent)
	}

	// The stream settles auth itself (EventSource passes the token in the
	// query string) so an expired token is a plain 401 before any bytes.
	deps.Stream.Auth = func(token string) bool {
		_, ok := verify(token)
		return ok
	}
	deps.Stream.KeepAlive = cfg.SSEKeepAlive
	if deps.Notifs != nil {
		deps.Stream.Backlog = func(ctx context.Context) [][]byte {
			return deps.Notifs.BacklogFrames(ctx, streamBacklogLimit)
		}
	}
	stream := deps.Stream.Handler()
	r.GET("/admin/notifications/stream", stream)
	r.GET("/user/notifications/stream", stream)
}

// limitBody caps the request body for all endpoints via http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
