package cmd

import (
	"log"
	"log/slog"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"

	"github.com/TheeGreenGenie/ticket-leader/config"
	"github.com/TheeGreenGenie/ticket-leader/handlers"
	_ "github.com/TheeGreenGenie/ticket-leader/migrations"
	"github.com/TheeGreenGenie/ticket-leader/monitoring"
	"github.com/TheeGreenGenie/ticket-leader/realtime"
	"github.com/TheeGreenGenie/ticket-leader/security"
	"github.com/TheeGreenGenie/ticket-leader/services"
	"github.com/TheeGreenGenie/ticket-leader/store"
	"github.com/TheeGreenGenie/ticket-leader/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Queue state lives in Redis; events and questions stay in the
	// document store.
	st := store.NewRedis(redisClient, store.NewPocketBase(app))

	// Realtime transport: PubNub when keys are configured, otherwise the
	// in-process WebSocket hub.
	var transport realtime.Transport
	var hub *realtime.Hub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		transport = realtime.NewPubNubTransport(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey)
		slog.Info("realtime transport: pubnub")
	} else {
		hub = realtime.NewHub()
		transport = hub
		slog.Info("realtime transport: websocket hub")
	}
	notifier := realtime.NewNotifier(transport, st)

	monitor := monitoring.NewMonitor()
	notifier.SetMonitor(monitor)

	// Initialize services. Queue and trust share one lock set so every
	// session mutation for an event serializes, whichever service runs it.
	eventLocks := services.NewEventLocks()
	queueService := services.NewQueueService(st, notifier, monitor, eventLocks)
	trustService := services.NewTrustService(st, notifier, eventLocks)
	admissionService := services.NewAdmissionService(st, cfg.IPWindow, cfg.IPThreshold)
	admissionService.OnRepeatedFailure(func(fc services.RepeatedFailureContext) {
		// step-up verification hook; for now the repeated failures are
		// only surfaced in the logs
		slog.Warn("repeated challenge failures",
			"event_id", fc.EventID,
			"ip", fc.IP,
			"failures", fc.Failures,
		)
	})
	background := services.NewBackgroundService(st, queueService, notifier, cfg, monitor)

	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(queueService, admissionService, hub, notifier)
	gameHandler := handlers.NewGameHandler(st, queueService, trustService)
	adminHandler := handlers.NewAdminHandler(st, queueService, trustService, cfg.AdminKeyHash, cfg.AdvanceBatchSize)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		background.Start()

		if cfg.EnableMetrics {
			monitoring.StartOpsServer(":"+cfg.MetricsPort, redisClient)
		}

		antiBot := rateLimiter.AntiBotMiddleware()

		// Queue endpoints
		e.Router.GET("/api/queue/challenge", queueHandler.GetChallenge).BindFunc(antiBot)
		e.Router.POST("/api/queue/join", queueHandler.JoinQueue).BindFunc(antiBot)
		e.Router.GET("/api/queue/status/{sessionId}", queueHandler.GetStatus)
		e.Router.POST("/api/queue/leave", queueHandler.LeaveQueue)
		e.Router.POST("/api/queue/location", queueHandler.SaveLocation)
		e.Router.GET("/api/queue/ws", queueHandler.ServeWS)

		// Game and trust endpoints
		e.Router.POST("/api/games/submit", gameHandler.SubmitAnswer).BindFunc(antiBot)
		e.Router.GET("/api/games/history/{sessionId}", gameHandler.GetHistory)
		e.Router.POST("/api/behavior", gameHandler.RecordBehavior)
		e.Router.GET("/api/trust/{sessionId}", gameHandler.GetTrustBreakdown)

		// Admin endpoints
		e.Router.POST("/api/admin/queue/reorder", adminHandler.ReorderQueue)
		e.Router.POST("/api/admin/queue/advance", adminHandler.AdvanceQueue)
		e.Router.POST("/api/admin/sessions/{sessionId}/detect", adminHandler.DetectSuspicious)
		e.Router.GET("/api/admin/dashboard", adminHandler.GetDashboard)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		background.Shutdown()
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}
