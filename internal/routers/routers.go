package routers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/osslararemellan/ole/internal/handlers"
	"github.com/osslararemellan/ole/internal/middlewares"
	"github.com/osslararemellan/ole/internal/utils"
	"github.com/osslararemellan/ole/middleware/jwt"
	logger "github.com/osslararemellan/ole/middleware/log"
	"github.com/osslararemellan/ole/pkg/ws"
	"github.com/osslararemellan/ole/utils/ratelimit"
)

// Deps is everything the routes need.
type Deps struct {
	Logger      *logger.Logger
	Tokens      *jwt.TokenManager
	Limiter     ratelimit.Limiter
	Pool        *utils.WorkerPool
	Hub         *ws.Hub
	CORSOrigins []string

	Profiles      *handlers.ProfileHandler
	Contacts      *handlers.ContactHandler
	Groups        *handlers.GroupHandler
	Conversations *handlers.ConversationHandler
	Resources     *handlers.ResourceHandler
	Files         *handlers.FileHandler
}

// SetupRoutes registers every route on r.
func SetupRoutes(r *gin.Engine, d Deps) {
	r.Use(logger.GinLogger(d.Logger), logger.Recovery(d.Logger))

	corsCfg := cors.DefaultConfig()
	if len(d.CORSOrigins) == 0 || (len(d.CORSOrigins) == 1 && d.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = d.CORSOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", logger.TraceHeader}
	corsCfg.ExposeHeaders = []string{logger.TraceHeader}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := middlewares.Auth(d.Tokens)

	// The WebSocket handshake must not go through Async: the connection
	// would hold a worker for its whole life.
	if d.Hub != nil {
		r.GET("/ws", auth, d.Hub.Serve)
	}

	api := r.Group("/api/v1", auth)
	if d.Limiter != nil {
		api.Use(middlewares.RateLimit(d.Limiter, ratelimit.ScopeAPI, d.Logger.Logger))
	}
	api.Use(middlewares.Async(d.Pool))

	RegisterProfileRoutes(api, d.Profiles)
	RegisterContactRoutes(api, d.Contacts)
	RegisterGroupRoutes(api, d.Groups)
	RegisterConversationRoutes(api, d.Conversations)
	RegisterResourceRoutes(api, d.Resources)
	RegisterFileRoutes(api, d.Files)
}

func RegisterProfileRoutes(api *gin.RouterGroup, h *handlers.ProfileHandler) {
	g := api.Group("/profiles")
	{
		g.GET("/me", h.Me)
		g.PUT("/me", h.UpdateMe)
		g.GET("", h.Search)
		g.GET("/:id", h.Get)
		g.DELETE("/:id", h.Delete) // admin only
	}
}

func RegisterContactRoutes(api *gin.RouterGroup, h *handlers.ContactHandler) {
	g := api.Group("/contacts")
	{
		g.GET("/directory", h.Directory)
		g.GET("", h.List)
		g.POST("", h.Add)
		g.DELETE("/:contact_id", h.Remove)
	}
}

func RegisterGroupRoutes(api *gin.RouterGroup, h *handlers.GroupHandler) {
	g := api.Group("/groups")
	{
		g.GET("/mine", h.Mine)
		g.POST("", h.Create)
		g.PUT("/:group_id", h.Update)
		g.DELETE("/:group_id", h.Delete)

		g.POST("/:group_id/join", h.Join)
		g.POST("/:group_id/invites", h.Invite)
		g.POST("/:group_id/leave", h.Leave)
		g.GET("/:group_id/members", h.Members)
		g.POST("/:group_id/members/:user_id/approve", h.Approve)
		g.DELETE("/:group_id/members/:user_id", h.RemoveMember)
	}
}

// RegisterConversationRoutes takes :target as "user:<id>" or "group:<id>".
// Sends are limited per user by the message service itself.
func RegisterConversationRoutes(api *gin.RouterGroup, h *handlers.ConversationHandler) {
	g := api.Group("/conversations/:target")
	{
		g.GET("/messages", h.History)
		g.POST("/messages", h.Send)
		g.POST("/read", h.MarkRead)
	}
}

func RegisterResourceRoutes(api *gin.RouterGroup, h *handlers.ResourceHandler) {
	g := api.Group("/resources")
	{
		g.GET("", h.Search)
		g.GET("/facets", h.Facets)
		g.POST("", h.Create)
		g.GET("/:id", h.Get)
		g.PUT("/:id", h.Update)
		g.DELETE("/:id", h.Delete)
		g.POST("/:id/download", h.Download)
	}
}

func RegisterFileRoutes(api *gin.RouterGroup, h *handlers.FileHandler) {
	g := api.Group("/files")
	{
		g.POST("", h.Upload)
		g.GET("/:id", h.Get)
	}
}
