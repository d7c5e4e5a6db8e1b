package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"praivio-go/internal/middleware"
	"praivio-go/internal/model"
	"praivio-go/internal/ratelimit"
	"praivio-go/internal/service"
	"praivio-go/pkg/llm"
)

// Deps 汇集了构建路由所需的全部服务。Files 为 nil 时不注册附件相关路由。
type Deps struct {
	Users       service.UserService
	Admin       service.AdminService
	Generations service.GenerationService
	Chats       service.ChatService
	Files       service.FileService
	Stats       service.StatsService
	Audit       service.AuditTrail
	LLM         llm.Client
	Gate        *ratelimit.Gate
	DB          *gorm.DB
	Version     string
	Limits      service.UploadLimits
}

// NewRouter 创建 gin 引擎并注册全部路由。
func NewRouter(d Deps) *gin.Engine {
	RegisterValidators()

	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(d.Audit), gin.Recovery())

	system := NewSystemHandler(d.Stats, d.DB, d.LLM, d.Version)
	r.GET("/health", system.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	userHandler := NewUserHandler(d.Users)
	generationHandler := NewGenerationHandler(d.Generations, d.LLM)
	chatHandler := NewChatHandler(d.Chats, d.Users, d.Audit, d.Gate)
	adminHandler := NewAdminHandler(d.Admin, d.Audit)

	requireRead := middleware.RequireCapability(model.CapRead)
	requireWrite := middleware.RequireCapability(model.CapWrite)

	apiV1 := r.Group("/api/v1")
	{
		// 无需认证的路由 (公开访问)
		apiV1.POST("/auth/refreshToken", NewAuthHandler(d.Users).RefreshToken)
		apiV1.POST("/users/login", userHandler.Login)
		// WebSocket 的 token 在路径中，由 handler 自行认证，每条消息单独限流
		apiV1.GET("/chat/ws/:token", chatHandler.Handle)

		// 需要认证的路由，按身份和路由限流
		authed := apiV1.Group("")
		authed.Use(middleware.AuthMiddleware(d.Users, d.Audit), middleware.RateLimit(d.Gate))
		{
			authed.GET("/users/me", userHandler.GetProfile)
			authed.POST("/users/logout", userHandler.Logout)

			authed.POST("/generate", requireWrite, generationHandler.Generate)
			authed.POST("/generate/stream", requireWrite, generationHandler.GenerateStream)
			authed.GET("/generations", requireRead, generationHandler.History)
			authed.GET("/templates", requireRead, generationHandler.Templates)
			authed.GET("/models", requireRead, generationHandler.Models)
			authed.GET("/stats", requireRead, system.Statistics)

			chat := authed.Group("/chat/sessions")
			{
				chat.POST("", requireWrite, chatHandler.CreateSession)
				chat.GET("", requireRead, chatHandler.ListSessions)
				chat.GET("/:id", requireRead, chatHandler.GetSession)
				chat.PUT("/:id", requireWrite, chatHandler.UpdateSession)
				chat.DELETE("/:id", requireWrite, chatHandler.DeleteSession)
				chat.POST("/:id/messages", requireWrite, chatHandler.SendMessage)
			}

			if d.Files != nil {
				uploadHandler := NewUploadHandler(d.Files, d.Limits)
				chat.GET("/:id/files", requireRead, uploadHandler.ListBySession)

				files := authed.Group("/files")
				{
					files.POST("/upload", requireWrite, uploadHandler.Upload)
					files.GET("/:id", requireRead, uploadHandler.Get)
					files.DELETE("/:id", requireWrite, uploadHandler.Delete)
					files.GET("/:id/download", requireRead, uploadHandler.Download)
				}
			}

			// 管理员路由组，需要 manage_users 能力
			admin := authed.Group("/admin")
			admin.Use(middleware.RequireCapability(model.CapManageUsers))
			{
				admin.GET("/users", adminHandler.ListUsers)
				admin.POST("/users", adminHandler.CreateUser)
				admin.PUT("/users/:id", adminHandler.UpdateUser)
				admin.DELETE("/users/:id", adminHandler.DeleteUser)
				admin.POST("/users/:id/toggle-status", adminHandler.ToggleUserStatus)
				admin.GET("/audit-logs", adminHandler.AuditLogs)
				admin.GET("/audit-logs/search", adminHandler.SearchAuditLogs)
			}
		}
	}
	return r
}
