package serve

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/docspace/conversation-service/internal/config"
	"github.com/docspace/conversation-service/internal/history"
	"github.com/docspace/conversation-service/internal/orchestrator"
	"github.com/docspace/conversation-service/internal/plugin/route/documents"
	"github.com/docspace/conversation-service/internal/plugin/route/messages"
	"github.com/docspace/conversation-service/internal/plugin/route/spaces"
	routesystem "github.com/docspace/conversation-service/internal/plugin/route/system"
	"github.com/docspace/conversation-service/internal/plugin/route/threads"
	storemetrics "github.com/docspace/conversation-service/internal/plugin/store/metrics"
	registrycache "github.com/docspace/conversation-service/internal/registry/cache"
	registrygenerate "github.com/docspace/conversation-service/internal/registry/generate"
	registrymigrate "github.com/docspace/conversation-service/internal/registry/migrate"
	registryroute "github.com/docspace/conversation-service/internal/registry/route"
	registrystore "github.com/docspace/conversation-service/internal/registry/store"
	"github.com/docspace/conversation-service/internal/security"
	"github.com/gin-gonic/gin"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config          *config.Config
	Store           registrystore.ConversationStore
	Router          *gin.Engine
	Port            int
	httpServer      *http.Server
	closeManagement func(context.Context) error
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closeManagement != nil {
		_ = s.closeManagement(ctx)
	}
	return s.httpServer.Shutdown(ctx)
}

// StartServer initializes all subsystems and starts the HTTP server.
// Use cfg.Listener.Port=0 for a random port. Actual port: Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting conversation service",
		"httpPort", cfg.Listener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"generate", cfg.GenerateType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	// Run migrations
	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	// Initialize the history cache. A broken cache downgrades to none.
	var historyCache registrycache.HistoryCache
	if cacheLoader, err := registrycache.Select(cfg.CacheType); err != nil {
		log.Warn("Cache not available", "cache", cfg.CacheType, "err", err)
	} else if historyCache, err = cacheLoader(ctx); err != nil {
		log.Warn("Failed to initialize cache", "cache", cfg.CacheType, "err", err)
		historyCache = nil
	}

	// Initialize store
	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	store = storemetrics.Wrap(store)

	// Initialize responder
	generateLoader, err := registrygenerate.Select(cfg.GenerateType)
	if err != nil {
		return nil, err
	}
	responder, err := generateLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize responder: %w", err)
	}

	retriever := history.NewRetriever(store, historyCache).WithTTL(cfg.CacheHistoryTTL)
	orch := orchestrator.New(store, retriever, responder)

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(security.RequestIDMiddleware())
	if cfg.ManagementAccessLog {
		router.Use(security.AccessLogMiddleware())
	} else {
		router.Use(security.AccessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(security.MetricsMiddleware())
	router.Use(maxBodySizeMiddleware(cfg.MaxBodySize))
	if cfg.CORSEnabled {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// Mount main route plugins on the main router.
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}

	// Create shared auth middleware.
	auth := security.NewAuthenticator(cfg).Middleware()

	// Mount API routes
	spaces.MountRoutes(router, store, auth)
	documents.MountRoutes(router, store, auth)
	threads.MountRoutes(router, store, orch, auth)
	messages.MountRoutes(router, store, orch, retriever, auth)

	// Mount management route plugins. If a dedicated management port is
	// configured, run them on a bare gin engine served separately. Otherwise,
	// mount them on the main router.
	var closeManagement func(context.Context) error
	if cfg.ManagementListenerEnabled {
		mgmtRouter := gin.New()
		mgmtRouter.Use(gin.Recovery())
		if cfg.ManagementAccessLog {
			mgmtRouter.Use(security.AccessLogMiddleware())
		}
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(mgmtRouter); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
		// Management listener shares TLS cert/key with the main listener.
		mgmtCfg := cfg.ManagementListener
		mgmtCfg.TLSCertFile = cfg.Listener.TLSCertFile
		mgmtCfg.TLSKeyFile = cfg.Listener.TLSKeyFile
		_, closeManagement, err = startListener(mgmtCfg, mgmtRouter, "management")
		if err != nil {
			return nil, fmt.Errorf("failed to start management server: %w", err)
		}
	} else {
		for _, loader := range registryroute.ManagementRouteLoaders() {
			if err := loader(router); err != nil {
				return nil, fmt.Errorf("failed to load management routes: %w", err)
			}
		}
	}

	httpServer, port, err := startMainListener(cfg.Listener, router)
	if err != nil {
		return nil, err
	}

	log.Info("Server listening", "port", port, "tls", useTLS(cfg.Listener))

	routesystem.MarkReady()
	return &Server{
		Config:          cfg,
		Store:           store,
		Router:          router,
		Port:            port,
		httpServer:      httpServer,
		closeManagement: closeManagement,
	}, nil
}

func useTLS(cfg config.ListenerConfig) bool {
	return cfg.EnableTLS && cfg.TLSCertFile != "" && cfg.TLSKeyFile != ""
}

func startMainListener(cfg config.ListenerConfig, handler http.Handler) (*http.Server, int, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, 0, fmt.Errorf("listen failed: %w", err)
	}
	port := lis.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	if useTLS(cfg) {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			_ = lis.Close()
			return nil, 0, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		lis = tls.NewListener(lis, &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h2", "http/1.1"},
			MinVersion:   tls.VersionTLS12,
		})
	}

	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
		}
	}()
	return srv, port, nil
}

// startListener starts a secondary HTTP server (management endpoints).
// Returns the bound address and a shutdown function.
func startListener(cfg config.ListenerConfig, handler http.Handler, name string) (net.Addr, func(context.Context) error, error) {
	srv, port, err := startMainListener(cfg, handler)
	if err != nil {
		return nil, nil, err
	}
	addr := &net.TCPAddr{Port: port}
	log.Info("Server listening", "server", name, "port", port)
	return addr, srv.Shutdown, nil
}
