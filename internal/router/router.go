package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/backnews/admin/internal/config"
	"github.com/backnews/admin/internal/handler"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "backnews_admin_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, cfg config.AppConfig, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	// 配置会话中间件，cookie 中只保存会话 ID
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/healthz", api.Health)

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.POST("/logout", api.Logout)

		// 需要认证的后台路由
		auth := admin.Group("")
		auth.Use(api.AuthRequired())
		{
			auth.GET("/me", api.Me)

			// API路由
			v := auth.Group("/api")
			{
				v.GET("/dashboard", api.Dashboard)

				v.GET("/articles", api.GetArticles)
				v.DELETE("/articles/:id", api.DeleteArticle)
				v.GET("/categories", api.GetCategories)
				v.PUT("/articles/:id/stats", api.UpdateArticleStats)
				v.GET("/articles/:id/comments", api.GetArticleComments)
				v.POST("/articles/:id/comments", api.AddArticleComment)
				v.DELETE("/articles/:id/comments/:commentId", api.DeleteArticleComment)
				v.POST("/preview", api.PreviewArticle)

				v.POST("/editors", api.OpenEditor)
				v.GET("/editors/:editorId", api.GetEditor)
				v.PATCH("/editors/:editorId", api.PatchEditor)
				v.POST("/editors/:editorId/image", api.AttachEditorImage)
				v.DELETE("/editors/:editorId/image", api.RemoveEditorImage)
				v.POST("/editors/:editorId/submit", api.SubmitEditor)
				v.DELETE("/editors/:editorId", api.CloseEditor)

				v.POST("/uploads", api.UploadImage)
				v.DELETE("/uploads", api.DeleteUpload)

				v.GET("/domains", api.GetDomains)
				v.GET("/domains/options", api.GetDomainOptions)
				v.GET("/users/limits", api.GetUserLimits)

				super := v.Group("")
				super.Use(api.RequireSuperAdmin())
				{
					super.POST("/domains", api.CreateDomain)
					super.PUT("/domains/:id", api.UpdateDomain)
					super.POST("/domains/:id/toggle", api.ToggleDomain)
					super.PUT("/domains/:id/settings", api.UpdateDomainSettings)
					super.DELETE("/domains/:id", api.DeleteDomain)

					super.GET("/users", api.GetUsers)
					super.POST("/users", api.CreateUser)
					super.PUT("/users/:id", api.UpdateUser)
					super.POST("/users/:id/toggle", api.ToggleUser)
					super.DELETE("/users/:id", api.DeleteUser)

					super.GET("/parser/status", api.GetParserStatus)
					super.GET("/parser/settings", api.GetParserSettings)
					super.PUT("/parser/settings", api.UpdateParserSettings)
					super.GET("/parser/history", api.GetParserHistory)
					super.POST("/parser/toggle", api.ToggleParser)
					super.POST("/parser/run", api.RunParser)
					super.POST("/parser/test", api.TestParser)
					super.POST("/parser/block-domain", api.BlockParserDomain)
					super.POST("/parser/unblock-domain", api.UnblockParserDomain)
					super.PUT("/parser/proxies", api.UpdateParserProxies)

					super.GET("/system/settings", api.GetSystemSettings)
					super.PUT("/system/settings", api.UpdateSystemSettings)
					super.POST("/system/backups", api.CreateBackup)
					super.GET("/system/backups", api.GetBackupHistory)
					super.GET("/system/blocked-ips", api.GetBlockedIPs)
					super.POST("/system/blocked-ips", api.BlockIP)
					super.DELETE("/system/blocked-ips/:ip", api.UnblockIP)
					super.POST("/system/sitemap", api.RefreshSitemap)
				}
			}
		}
	}

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
