package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"therapymeet/internal/api"
	"therapymeet/internal/auth"
	"therapymeet/internal/config"
	"therapymeet/internal/database"
	"therapymeet/internal/realtime"
	"therapymeet/internal/rooms"
	"therapymeet/internal/router"
	"therapymeet/internal/session"
)

// Application wires all components together. Initialization follows
// dependency order: Database → Session → Registry → Rooms → Router →
// Realtime → API → HTTP.
type Application struct {
	config         *config.Config
	dbManager      *database.Manager
	sessionManager *session.Manager
	registry       *realtime.Registry
	roomStore      *rooms.Store
	lifecycle      *rooms.Lifecycle
	eventRouter    *router.Router
	apiServer      *api.Server
	httpServer     *http.Server
}

func NewApplication(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbManager, err := database.NewManager(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	sessionManager := session.NewManager(dbManager)

	secret := cfg.Auth.TokenSecret
	if secret == "" {
		// Tokens from earlier runs stop verifying when the secret is
		// regenerated, so production deployments should configure one.
		secret = randomSecret()
		log.Println("No auth token secret configured, generated an ephemeral one")
	}
	tokens := auth.NewTokenManager(secret, cfg.Auth.TokenTTL)

	registry := realtime.NewRegistry()
	roomStore := rooms.NewStore()
	lifecycle := rooms.NewLifecycle(roomStore, cfg.Realtime.DisconnectDelay)
	eventRouter := router.New(registry, roomStore, lifecycle)

	wsHandler := realtime.NewHandler(registry, eventRouter, realtime.Options{
		PingInterval: cfg.Realtime.PingInterval,
		ReadTimeout:  cfg.Realtime.ReadTimeout,
		WriteTimeout: cfg.Realtime.WriteTimeout,
		SendBuffer:   cfg.Realtime.SendBuffer,
	})

	apiServer := api.NewServer(dbManager, sessionManager, tokens, registry)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:         cfg,
		dbManager:      dbManager,
		sessionManager: sessionManager,
		registry:       registry,
		roomStore:      roomStore,
		lifecycle:      lifecycle,
		eventRouter:    eventRouter,
		apiServer:      apiServer,
		httpServer:     httpServer,
	}, nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken.
		panic(fmt.Sprintf("failed to generate secret: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Start begins serving. It returns once the listener is accepting
// connections or startup failed.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting TherapyMeet application on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("TherapyMeet application started successfully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP → timers → database.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down TherapyMeet application")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.lifecycle.Shutdown()

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("TherapyMeet application shutdown complete")
	return nil
}

// GetAddr returns the server address for external connections.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
