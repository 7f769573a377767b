package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-crm-lookup/internal/api"
	"whatsapp-crm-lookup/internal/config"
	"whatsapp-crm-lookup/internal/crm"
	"whatsapp-crm-lookup/internal/database"
	"whatsapp-crm-lookup/internal/dom"
	"whatsapp-crm-lookup/internal/engine"
	"whatsapp-crm-lookup/internal/logging"
	"whatsapp-crm-lookup/internal/settings"
	"whatsapp-crm-lookup/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// emptyPage is the mirror the browser shim fills in through region updates.
const emptyPage = `<html><head></head><body></body></html>`

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	store := settings.NewStore(db)
	if err := store.Seed(ctx, settings.Credentials{APIKey: cfg.CRMAPIKey, LocationID: cfg.CRMLocationID}); err != nil {
		logger.Fatal("seed settings", zap.Error(err))
	}

	doc, err := dom.ParseString(emptyPage)
	if err != nil {
		logger.Fatal("build page mirror", zap.Error(err))
	}

	hub := ws.NewHub(doc, nil, logger)
	hub.AllowOrigins(cfg.AllowedOrigins...)
	go hub.Run()

	opts := engine.DefaultOptions()
	opts.PollInterval = cfg.PollInterval
	finder := engine.CRMFinder(crm.Options{
		BaseURL:      cfg.CRMBaseURL,
		APIVersion:   cfg.CRMAPIVersion,
		RateLimitRPS: cfg.LookupRPS,
	}, logger)
	eng := engine.New(doc, store, finder, hub, opts, logger)
	hub.SetSignalHandler(eng)
	eng.Start(ctx)
	defer eng.Stop()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.CORS(cfg.AllowedOrigins))

	settingsHandler := api.NewSettingsHandler(store, eng, logger)
	controlHandler := api.NewControlHandler(eng)

	r.GET("/ws", gin.WrapF(hub.ServeWs))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/settings", settingsHandler.GetSettings)
		apiGroup.PUT("/settings", settingsHandler.UpdateSettings)
		apiGroup.POST("/control", controlHandler.Signal)
		apiGroup.GET("/status", controlHandler.Status)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("server starting", zap.String("port", cfg.Port), zap.String("db_driver", cfg.DBDriver))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("run server", zap.Error(err))
	}
}
