package router

import (
	"database/sql"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/moxer-mmh/Tweeza/authz"
	"github.com/moxer-mmh/Tweeza/handlers"
	"github.com/moxer-mmh/Tweeza/internal/config"
	"github.com/moxer-mmh/Tweeza/internal/logger"
	"github.com/moxer-mmh/Tweeza/services"
)

// cors answers preflight requests and echoes allowed origins. "*" allows any origin.
func cors(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0 || slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(origins, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// oauthProviders builds the providers that have credentials configured
func oauthProviders(cfg config.OAuthConfig) map[string]services.OAuthProvider {
	providers := make(map[string]services.OAuthProvider)
	if g := cfg.Google; g.Enabled() {
		providers[services.ProviderGoogle] = services.GoogleProvider(g.ClientID, g.ClientSecret, g.RedirectURL)
	}
	if f := cfg.Facebook; f.Enabled() {
		providers[services.ProviderFacebook] = services.FacebookProvider(f.ClientID, f.ClientSecret, f.RedirectURL)
	}
	return providers
}

// NewGinRouter wires repositories, services and handlers onto one engine.
// store holds OAuth state and SMS codes; production passes a RedisStore.
func NewGinRouter(pg *sql.DB, store services.KeyValueStore, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(logger.GinRecovery(log), logger.GinMiddleware(log), cors(config.App.CORSOrigins))

	// Repositories
	backend := authz.NewSimpleBackend(pg, log)
	userRepo := services.NewSimpleUserRepository(pg)
	eventRepo := services.NewSimpleEventRepository(pg)
	resourceRepo := services.NewSimpleResourceRepository(pg)
	notificationRepo := services.NewSimpleNotificationRepository(pg)

	// Services
	az := backend.Evaluator
	tokens := services.NewTokenProvider(config.App.JWTSecret, config.App.JWTIssuer,
		config.App.AccessTokenTTL, config.App.TwoFactorChallengeTTL)
	notificationService := services.NewNotificationService(notificationRepo, log)
	orgService := authz.NewOrgService(az, backend.Members, backend.Roles, backend.Orgs, log)
	twoFactorService := services.NewTwoFactorService(userRepo, store, nil, log)
	authService := services.NewAuthService(userRepo, orgService, tokens, twoFactorService, log)
	oauthService := services.NewOAuthService(oauthProviders(config.App.OAuth), store, userRepo, tokens, log)
	userService := services.NewUserService(az, userRepo, backend.Roles, log)
	eventService := services.NewEventService(az, eventRepo, backend.Orgs, backend.Members, userRepo, notificationService, log)
	resourceService := services.NewResourceService(az, resourceRepo, eventRepo, backend.Members, notificationService, log)
	analyticsService := services.NewAnalyticsService(pg, az, backend.Roles, log)
	searchService := services.NewSearchService(az, userRepo, backend.Orgs, eventRepo, resourceRepo, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, log)
	oauthHandler := handlers.NewOAuthHandler(oauthService, log)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, log)
	userHandler := handlers.NewUserHandler(userService, log)
	orgHandler := handlers.NewOrgHandler(orgService, log)
	eventHandler := handlers.NewEventHandler(eventService, log)
	resourceHandler := handlers.NewResourceHandler(resourceService, log)
	notificationHandler := handlers.NewNotificationHandler(notificationService, log)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, log)
	searchHandler := handlers.NewSearchHandler(searchService, log)

	authMiddleware := handlers.NewAuthMiddleware(authService, log)
	authzMiddleware := authz.NewAuthzMiddleware(az, log)

	r.GET("/health", func(c *gin.Context) {
		if err := pg.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := r.Group("/api/v1")
	api.Use(handlers.RequireUUIDParams())

	// PUBLIC ROUTES
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/register-organization", authHandler.RegisterOrganization)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/login/2fa", authHandler.LoginTwoFactor)
		authRoutes.GET("/oauth/:provider/login", oauthHandler.Login)
		authRoutes.GET("/oauth/:provider/callback", oauthHandler.Callback)
		authRoutes.POST("/oauth/login", oauthHandler.TokenLogin)
	}

	api.GET("/organizations", orgHandler.ListOrgs)
	api.GET("/organizations/:id", orgHandler.GetOrg)
	api.GET("/organizations/:id/members", orgHandler.GetOrgMembers)
	api.GET("/events", eventHandler.ListEvents)
	api.GET("/events/upcoming", eventHandler.UpcomingEvents)
	api.GET("/events/organization/:org_id", eventHandler.OrganizationEvents)
	api.GET("/events/:id", eventHandler.GetEvent)
	api.GET("/events/:id/collaborators", eventHandler.ListCollaborators)
	api.GET("/resources/requests/event/:event_id", resourceHandler.ListEventRequests)
	api.GET("/resources/requests/:id", resourceHandler.GetRequest)
	api.GET("/resources/contributions/request/:id", resourceHandler.RequestContributions)

	searchRoutes := api.Group("/search")
	{
		searchRoutes.GET("/organizations", searchHandler.Organizations)
		searchRoutes.GET("/events", searchHandler.Events)
		searchRoutes.GET("/events/nearby", searchHandler.NearbyEvents)
		searchRoutes.GET("/resources", searchHandler.Resources)
		searchRoutes.GET("/combined", searchHandler.Combined)
	}

	// PROTECTED ROUTES
	protected := api.Group("")
	protected.Use(authMiddleware.RequireAuth())
	{
		twoFactorRoutes := protected.Group("/two-factor")
		{
			twoFactorRoutes.GET("/status", twoFactorHandler.Status)
			twoFactorRoutes.POST("/setup", twoFactorHandler.Setup)
			twoFactorRoutes.POST("/verify-setup", twoFactorHandler.VerifySetup)
			twoFactorRoutes.POST("/enable", twoFactorHandler.Enable)
			twoFactorRoutes.DELETE("/disable", twoFactorHandler.Disable)
			twoFactorRoutes.POST("/send-code", twoFactorHandler.SendCode)
			twoFactorRoutes.POST("/verify", twoFactorHandler.Verify)
		}

		userRoutes := protected.Group("/users")
		{
			userRoutes.GET("/me", userHandler.GetMe)
			userRoutes.POST("/me/devices", notificationHandler.RegisterDevice)
			userRoutes.DELETE("/me/devices/:token", notificationHandler.UnregisterDevice)
			userRoutes.GET("", userHandler.ListUsers)
			userRoutes.GET("/search", userHandler.SearchUsers)
			userRoutes.GET("/count-by-role", userHandler.CountByRole)
			userRoutes.GET("/with-role/:role", userHandler.UsersWithRole)
			userRoutes.GET("/:id", userHandler.GetUser)
			userRoutes.PUT("/:id", userHandler.UpdateUser)
			userRoutes.DELETE("/:id", userHandler.DeleteUser)
			userRoutes.GET("/:id/roles", userHandler.GetUserRoles)
			userRoutes.POST("/:id/roles/:role", userHandler.AddRole)
			userRoutes.DELETE("/:id/roles/:role", userHandler.RemoveRole)
		}

		orgRoutes := protected.Group("/organizations")
		{
			orgRoutes.POST("", orgHandler.CreateOrg)
			orgRoutes.GET("/mine", orgHandler.ListMyOrgs)
			// member self-removal is decided by the service, not the middleware
			orgRoutes.DELETE("/:id/members/:user_id", orgHandler.RemoveOrgMember)

			managed := orgRoutes.Group("/:id")
			managed.Use(authzMiddleware.RequireOrgManager("id"))
			{
				managed.PUT("", orgHandler.UpdateOrg)
				managed.DELETE("", orgHandler.DeleteOrg)
				managed.POST("/members", orgHandler.AddOrgMember)
				managed.PUT("/members/:user_id", orgHandler.UpdateOrgMemberRole)
			}
		}

		eventRoutes := protected.Group("/events")
		{
			eventRoutes.POST("", eventHandler.CreateEvent)
			eventRoutes.PUT("/:id", eventHandler.UpdateEvent)
			eventRoutes.DELETE("/:id", eventHandler.DeleteEvent)
			eventRoutes.POST("/:id/collaborators", eventHandler.AddCollaborator)
			eventRoutes.DELETE("/:id/collaborators/:org_id", eventHandler.RemoveCollaborator)
			eventRoutes.GET("/:id/beneficiaries", eventHandler.ListBeneficiaries)
			eventRoutes.POST("/:id/beneficiaries", eventHandler.AddBeneficiary)
		}

		resourceRoutes := protected.Group("/resources")
		{
			resourceRoutes.POST("/requests/event/:event_id", resourceHandler.CreateRequest)
			resourceRoutes.PUT("/requests/:id", resourceHandler.UpdateRequest)
			resourceRoutes.DELETE("/requests/:id", resourceHandler.DeleteRequest)
			resourceRoutes.POST("/contributions", resourceHandler.Contribute)
			resourceRoutes.GET("/contributions/mine", resourceHandler.MyContributions)
			resourceRoutes.POST("/contributions/:id/confirm", resourceHandler.ConfirmDelivery)
		}

		notificationRoutes := protected.Group("/notifications")
		{
			notificationRoutes.GET("", notificationHandler.ListNotifications)
			notificationRoutes.GET("/unread-count", notificationHandler.UnreadCount)
			notificationRoutes.PUT("/read-all", notificationHandler.MarkAllRead)
			notificationRoutes.PUT("/:id/read", notificationHandler.MarkRead)
			notificationRoutes.DELETE("/:id", notificationHandler.DeleteNotification)
		}

		analyticsRoutes := protected.Group("/analytics")
		analyticsRoutes.Use(authzMiddleware.RequireAnyRole(authz.RoleAdmin, authz.RoleSuperAdmin))
		{
			analyticsRoutes.GET("/dashboard", analyticsHandler.Dashboard)
			analyticsRoutes.GET("/registrations", analyticsHandler.Registrations)
			analyticsRoutes.GET("/contributions", analyticsHandler.Contributions)
			analyticsRoutes.GET("/attendance", analyticsHandler.Attendance)
		}

		protected.GET("/search/users", authzMiddleware.RequireSuperAdmin(), searchHandler.Users)
	}

	return r
}
