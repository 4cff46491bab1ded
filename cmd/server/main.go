package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/cabinet-bootstrap/internal/cache"
	"github.com/otcheredev/cabinet-bootstrap/internal/config"
	"github.com/otcheredev/cabinet-bootstrap/internal/database"
	"github.com/otcheredev/cabinet-bootstrap/internal/handlers"
	"github.com/otcheredev/cabinet-bootstrap/internal/memstore"
	"github.com/otcheredev/cabinet-bootstrap/internal/middleware"
	"github.com/otcheredev/cabinet-bootstrap/internal/monitor"
	"github.com/otcheredev/cabinet-bootstrap/internal/notifier"
	"github.com/otcheredev/cabinet-bootstrap/internal/privileged"
	"github.com/otcheredev/cabinet-bootstrap/internal/repository"
	"github.com/otcheredev/cabinet-bootstrap/internal/services"
	"github.com/otcheredev/cabinet-bootstrap/pkg/fallback"
	"github.com/otcheredev/cabinet-bootstrap/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// stores groups the caller-rights and service-role persistence
type stores struct {
	cabinets services.CabinetStore
	members  services.MemberStore
	profiles services.ProfileStore
	audit    services.AuditStore

	serviceCabinets privileged.CabinetStore
	serviceMembers  privileged.MemberStore

	checks map[string]handlers.Check
	close  func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("store", cfg.Store.Driver).Msg("Starting cabinet bootstrap service")

	st, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open stores")
	}
	defer st.close()

	// Initialize cache
	var cacheImpl cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, cfg.Cache.Prefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		st.checks["redis"] = redisCache.Ping
		cacheImpl = redisCache
		log.Info().Msg("Redis cache initialized")
	} else {
		cacheImpl = cache.NewMemoryCache()
		log.Info().Msg("Memory cache initialized")
	}
	defer cacheImpl.Close()

	errorMonitor := monitor.NewErrorMonitor(cacheImpl, monitor.Config{
		MaxNotifications: cfg.Monitor.MaxNotifications,
		Window:           cfg.Monitor.Window,
		RemediateTimeout: cfg.Monitor.RemediateTimeout,
	})

	// Privileged channel
	var authAdmin privileged.AuthAdmin
	if cfg.AuthAdmin.URL != "" {
		authAdmin = privileged.NewGoTrueAdmin(cfg.AuthAdmin.URL, cfg.AuthAdmin.ServiceKey)
	}
	direct := privileged.NewDirect(st.serviceCabinets, st.serviceMembers, authAdmin)

	var channel privileged.Channel = direct
	if cfg.Functions.BaseURL != "" {
		channel = privileged.NewHTTPChannel(cfg.Functions.BaseURL, cfg.Functions.APIKey, cfg.Functions.Timeout)
		log.Info().Str("base_url", cfg.Functions.BaseURL).Msg("Using remote privileged functions")
	}

	var dispatcher notifier.Dispatcher = notifier.NewLogDispatcher()
	if cfg.Notifier.WebhookURL != "" {
		dispatcher = notifier.NewWebhookDispatcher(cfg.Notifier.WebhookURL, cfg.Notifier.APIKey)
	}

	// Initialize services
	opts := services.Options{
		CallTimeout:        cfg.Bootstrap.CallTimeout,
		Backoff:            fallback.Backoff{MaxAttempts: cfg.Bootstrap.MaxAttempts, BaseDelay: cfg.Bootstrap.BaseDelay},
		DefaultCabinetName: cfg.Bootstrap.DefaultCabinetName,
		LoginURL:           cfg.Notifier.LoginURL,
		Origin:             cfg.Bootstrap.Origin,
	}
	bootstrapService := services.NewBootstrapService(
		services.NewProfileEnsurer(st.profiles, errorMonitor, opts),
		services.NewTenantProvisioner(st.cabinets, channel, errorMonitor, opts),
		services.NewMembershipReconciler(st.members, channel, dispatcher, errorMonitor, opts),
		st.cabinets,
		st.audit,
	)
	errorMonitor.SetRemediator(bootstrapService)

	// Initialize handlers
	auth := middleware.NewAuth(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	healthHandler := handlers.NewHealthHandler(st.checks)
	bootstrapHandler := handlers.NewBootstrapHandler(bootstrapService)
	errorHandler := handlers.NewErrorHandler(errorMonitor)
	functionsHandler := handlers.NewFunctionsHandler(direct)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health endpoints (no authentication required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Application API (requires a session)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequireSession)

		r.Post("/bootstrap", bootstrapHandler.Bootstrap)
		r.Get("/bootstrap/history", bootstrapHandler.History)
		r.Post("/auth/events", bootstrapHandler.AuthEvent)
		r.Put("/profile", bootstrapHandler.SaveProfile)
		r.Get("/cabinet", bootstrapHandler.Cabinet)
		r.Get("/cabinet/members", bootstrapHandler.Team)
		r.Post("/errors", errorHandler.Report)
	})

	// Privileged server functions (require the service key)
	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(middleware.ServiceKey(cfg.Auth.ServiceKey))

		r.Post("/"+privileged.FunctionCreateTeamMember, functionsHandler.CreateTeamMember)
		r.Post("/"+privileged.FunctionUpdateTeamMember, functionsHandler.UpdateTeamMember)
		r.Post("/"+privileged.FunctionCreateCabinet, functionsHandler.CreateCabinet)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.Store.Driver == "memory" {
		mem := memstore.New()
		log.Warn().Msg("Using in-memory store; data is lost on restart")
		return &stores{
			cabinets:        mem.Cabinets(),
			members:         mem.Members(),
			profiles:        mem.Profiles(),
			audit:           mem.Audit(),
			serviceCabinets: mem.Cabinets(),
			serviceMembers:  mem.Members(),
			checks:          map[string]handlers.Check{},
			close:           func() {},
		}, nil
	}

	if err := database.Connect(databaseConfig(cfg.Database)); err != nil {
		return nil, err
	}
	if cfg.Store.Migrate {
		if err := database.Migrate(database.DB); err != nil {
			return nil, err
		}
	}

	serviceDB := database.DB
	if cfg.PrivilegedDatabaseConfigured() {
		db, err := database.Open(databaseConfig(cfg.PrivilegedDatabase))
		if err != nil {
			return nil, fmt.Errorf("failed to open service-role connection: %w", err)
		}
		serviceDB = db
		log.Info().Str("user", cfg.PrivilegedDatabase.User).Msg("Service-role database connected")
	}

	checks := map[string]handlers.Check{"database": pingDB(database.DB)}
	if serviceDB != database.DB {
		checks["service_database"] = pingDB(serviceDB)
	}

	return &stores{
		cabinets:        repository.NewCabinetRepository(database.DB),
		members:         repository.NewMemberRepository(database.DB),
		profiles:        repository.NewProfileRepository(database.DB),
		audit:           repository.NewAuditRepository(database.DB),
		serviceCabinets: repository.NewCabinetRepository(serviceDB),
		serviceMembers:  repository.NewMemberRepository(serviceDB),
		checks:          checks,
		close: func() {
			if serviceDB != database.DB {
				_ = database.Close(serviceDB)
			}
			_ = database.Close(database.DB)
		},
	}, nil
}

func databaseConfig(c config.DatabaseConfig) database.Config {
	return database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          c.DBName,
		SSLMode:         c.SSLMode,
		LogLevel:        c.LogLevel,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

func pingDB(db *gorm.DB) handlers.Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
