// Package main runs the events portal HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/srcf/lightbluetent/config"
	"github.com/srcf/lightbluetent/internal/access"
	"github.com/srcf/lightbluetent/internal/assets"
	"github.com/srcf/lightbluetent/internal/auth"
	"github.com/srcf/lightbluetent/internal/bbb"
	"github.com/srcf/lightbluetent/internal/groups"
	"github.com/srcf/lightbluetent/internal/links"
	"github.com/srcf/lightbluetent/internal/lookup"
	"github.com/srcf/lightbluetent/internal/middleware"
	"github.com/srcf/lightbluetent/internal/models"
	"github.com/srcf/lightbluetent/internal/recurrence"
	"github.com/srcf/lightbluetent/internal/rooms"
	"github.com/srcf/lightbluetent/internal/users"
	"github.com/srcf/lightbluetent/pkg/database"
	"github.com/srcf/lightbluetent/pkg/queue"
	"github.com/srcf/lightbluetent/pkg/redis"
	"github.com/srcf/lightbluetent/pkg/response"
	"github.com/srcf/lightbluetent/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Meeting.URL == "" || cfg.Meeting.Secret == "" {
		logger.Fatal("BIGBLUEBUTTON_URL and BIGBLUEBUTTON_SECRET are required")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(),
		database.PoolOptions{MaxConns: int32(cfg.Database.MaxConns)}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if _, err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	if cfg.AWS.Region == "" && cfg.AWS.Endpoint == "" {
		logger.Warn("AWS_REGION not set; logo uploads will use the default credential chain region")
	}
	objects, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		LogosBucket:     cfg.AWS.LogosBucket,
		Endpoint:        cfg.AWS.Endpoint,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	directory, err := lookup.NewClient(cfg.Lookup.URL, cfg.Lookup.CacheSize,
		cfg.Meeting.ConnectTimeout, cfg.Meeting.ReadTimeout, logger)
	if err != nil {
		logger.Fatal("lookup client", zap.Error(err))
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	logoStore := assets.NewStore(objects, assets.NewRepository(pool),
		redis.NewLocker(rdb.Client, 30*time.Second, logger), jobQueue, logger)

	meetings := bbb.NewMeetings(
		bbb.NewClient(cfg.Meeting.URL, cfg.Meeting.Secret, cfg.Meeting.ConnectTimeout, cfg.Meeting.ReadTimeout, logger),
		cfg.App.PublicBaseURL, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	userRepo := users.NewRepository(pool)
	groupRepo := groups.NewRepository(pool)
	roomRepo := rooms.NewRepository(pool)
	linkRepo := links.NewRepository(pool)
	gate := access.NewGate(roomRepo, userRepo, logger)

	authHandler := auth.NewHandler(jwtService, userRepo, strings.HasPrefix(cfg.App.PublicBaseURL, "https://"), logger)
	userHandler := users.NewHandler(users.Deps{
		Store:         userRepo,
		Groups:        groupRepo,
		Rooms:         roomRepo,
		Meetings:      meetings,
		Directory:     directory,
		EnableSignups: cfg.App.EnableSignups,
		Logger:        logger,
	})
	groupHandler := groups.NewHandler(groups.Deps{
		Store:        groupRepo,
		Users:        userRepo,
		Rooms:        roomRepo,
		Meetings:     meetings,
		Links:        linkRepo,
		Logos:        logoStore,
		Names:        directory,
		SupportEmail: cfg.App.SupportEmail,
		Logger:       logger,
	})
	roomHandler := rooms.NewHandler(rooms.Deps{
		Service:      rooms.NewService(roomRepo, userRepo, groupRepo, logger),
		Meetings:     meetings,
		Gate:         gate,
		Links:        linkRepo,
		Groups:       groupRepo,
		Logos:        logoStore,
		Names:        directory,
		Validator:    recurrence.NewValidator(cfg.App.Location()),
		SupportEmail: cfg.App.SupportEmail,
		Logger:       logger,
	})

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Principal(jwtService))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	if cfg.App.HasDirectoryPage {
		router.GET("/", groups.NewDirectory(groupRepo, roomRepo, meetings, logoStore, logger).List)
	} else {
		router.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/u/home") })
	}

	authGroup := router.Group("/auth")
	{
		authGroup.GET("/callback", authHandler.Callback)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", authHandler.Me)
	}

	signedIn := middleware.RequirePrincipal()

	u := router.Group("/u", signedIn)
	{
		u.GET("/home", userHandler.Home)
		u.GET("/register", userHandler.RegisterPage)
		u.POST("/register", userHandler.Register)
		u.GET("/profile", userHandler.Profile)
		u.PATCH("/profile", userHandler.UpdateProfile)
		u.POST("/register_group",
			middleware.RequirePermission(userRepo, models.PermissionCreateGroups, logger), groupHandler.Register)
		u.POST("/rooms",
			middleware.RequirePermission(userRepo, models.PermissionCreateRooms, logger), roomHandler.CreatePersonal)
	}

	router.GET("/g/:id", groupHandler.Show)
	router.POST("/g/:id/join", groupHandler.Join)
	g := router.Group("/g/:id", signedIn)
	{
		g.GET("/manage", groupHandler.Manage)
		g.POST("/begin", groupHandler.Begin)
		g.POST("/end", groupHandler.End)
		g.PATCH("", groupHandler.Update)
		g.DELETE("", groupHandler.Delete)
		g.POST("/logo", groupHandler.UploadLogo)
		g.DELETE("/logo", groupHandler.DeleteLogo)
		g.POST("/owners", groupHandler.AddOwner)
		g.DELETE("/owners/:crsid", groupHandler.RemoveOwner)
		g.POST("/links", groupHandler.AddLink)
		g.PATCH("/links/:linkId", groupHandler.EditLink)
		g.DELETE("/links/:linkId", groupHandler.DeleteLink)
		g.PUT("/links/order", groupHandler.OrderLinks)
		g.POST("/whitelist", groupHandler.AddWhitelist)
		g.DELETE("/whitelist/:crsid", groupHandler.RemoveWhitelist)
		g.POST("/rooms",
			middleware.RequirePermission(userRepo, models.PermissionCreateRooms, logger), roomHandler.CreateForGroup)
	}

	router.GET("/r/:id/join", roomHandler.Show)
	router.POST("/r/:id/join", roomHandler.Join)
	router.GET("/r/:id/calendar.ics", roomHandler.Calendar)
	r := router.Group("/r/:id", signedIn)
	{
		r.GET("/manage", roomHandler.Manage)
		r.POST("/update/:type", roomHandler.Update)
		r.POST("/links", roomHandler.AddLink)
		r.PATCH("/links/:linkId", roomHandler.EditLink)
		r.DELETE("/links/:linkId", roomHandler.DeleteLink)
		r.POST("/begin", roomHandler.Begin)
		r.POST("/end", roomHandler.End)
		r.POST("/new_password", roomHandler.NewPassword)
		r.DELETE("/whitelist/:crsid", roomHandler.Unwhitelist)
		r.DELETE("/sessions/:sessionId", roomHandler.DeleteSession)
		r.DELETE("", roomHandler.Delete)
	}

	router.GET("/:alias", roomHandler.Show)
	router.POST("/:alias", roomHandler.Join)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
