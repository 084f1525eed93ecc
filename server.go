package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"chatty/internal/auth"
	"chatty/internal/config"
	"chatty/internal/db"
	"chatty/internal/delivery"
	"chatty/internal/handlers"
	"chatty/internal/logging"
	"chatty/internal/middleware"
	"chatty/internal/observability"
	"chatty/internal/rabbitmq"
	"chatty/internal/realtime"
	"chatty/internal/repositories"
	"chatty/internal/roster"
	"chatty/internal/telemetry"
	"chatty/internal/uploads"
	"chatty/internal/ws"
)

const serviceName = "chatty"

type stores struct {
	Messages repositories.MessageRepository
	Users    repositories.UserRepository
	Writer   repositories.UserWriter
	close    func() error
}

func (s stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// openStores picks the message store implementation for the configured driver.
func openStores(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (stores, error) {
	switch appConfig.DatabaseDriver {
	case config.DriverPostgres:
		database, err := db.Connect(ctx, appConfig.DatabaseDSN, logger)
		if err != nil {
			return stores{}, err
		}
		users := repositories.NewUserRepo(database)
		return stores{
			Messages: repositories.NewMessageRepo(database),
			Users:    users,
			Writer:   users,
			close:    database.Close,
		}, nil
	default:
		database, err := db.OpenSQLite(appConfig.DatabasePath, logger)
		if err != nil {
			return stores{}, err
		}
		sqlDB, err := database.DB()
		if err != nil {
			return stores{}, err
		}
		store := repositories.NewGormStore(database, time.Now)
		return stores{Messages: store, Users: store, Writer: store, close: sqlDB.Close}, nil
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	shutdownTracer, err := telemetry.InitTracer(ctx, appConfig.OTelEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	st, err := openStores(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	publisher := rabbitmq.NewPublisher(appConfig.AMQPURL, appConfig.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info("event mirror configured",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("reason", rabbitmq.PublisherNoopReason(publisher)))
	auditor := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, appConfig.Environment, logger)

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	uploader, err := uploads.NewDiskUploader(appConfig.UploadsDir, appConfig.UploadsBaseURL, appConfig.UploadsMaxSize)
	if err != nil {
		return err
	}

	registry := realtime.NewRegistry(realtime.RegistryConfig{Logger: logger, AnnounceOnlineUsers: true})
	router := realtime.NewRouter(registry, logger)
	presence := realtime.NewPresenceTracker(registry, router, st.Users, logger)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	var runWG sync.WaitGroup
	runWG.Add(1)
	go func() {
		defer runWG.Done()
		registry.Run(runCtx)
	}()

	deliveryService, err := delivery.NewService(delivery.ServiceConfig{
		Messages:     st.Messages,
		Users:        st.Users,
		Reachability: registry,
		Emitter:      router,
		Uploader:     uploader,
		Auditor:      auditor,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	aggregator, err := roster.NewAggregator(roster.Config{
		Users:       st.Users,
		Messages:    st.Messages,
		Presence:    presence,
		Concurrency: appConfig.RosterWorkers,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	engine := newRouter(appConfig, logger, routerDeps{
		auth:     validator,
		messages: handlers.NewMessageHandler(deliveryService, aggregator, presence, logger),
		ws: ws.NewHandler(ws.HandlerConfig{
			Registry:       registry,
			Authenticator:  validator,
			AllowedOrigins: appConfig.AllowedOrigins,
			SendBuffer:     appConfig.SendBuffer,
			PingInterval:   appConfig.PingInterval,
			Logger:         logger,
		}),
		auditor:  auditor,
		registry: registry,
	})

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: engine,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress), zap.String("driver", appConfig.DatabaseDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		serveErr = httpServer.Shutdown(shutdownCtx)
		cancel()
	case serveErr = <-errCh:
	}

	// Hijacked websockets survive Shutdown; closing the registry disconnects them
	// and the dispatcher drains the resulting offline transitions.
	registry.Close()
	runWG.Wait()
	logger.Info("server stopped")
	return serveErr
}

type routerDeps struct {
	auth     middleware.Authenticator
	messages *handlers.MessageHandler
	ws       *ws.Handler
	auditor  handlers.Auditor
	registry *realtime.Registry
}

func newRouter(appConfig config.AppConfig, logger *zap.Logger, deps routerDeps) *gin.Engine {
	if logging.ParseLevel(appConfig.LogLevel) > zap.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID", "X-Device-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static(appConfig.UploadsBaseURL, appConfig.UploadsDir)
	router.GET("/ws", deps.ws.Handle)

	api := router.Group("/api", middleware.AuthMiddleware(deps.auth))
	deps.messages.Register(api)

	handlers.RegisterDebugRoutes(router, deps.auditor, deps.registry, appConfig.DebugRoutes)
	logger.Debug("routes registered", zap.Int("count", len(router.Routes())))
	return router
}
