package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	api_utils "github.com/ethanbaker/api/pkg/utils"
	"github.com/ethanbaker/chatbot/internal/chat"
	"github.com/ethanbaker/chatbot/internal/stores/session"
	"github.com/ethanbaker/chatbot/pkg/provider"
	"github.com/ethanbaker/chatbot/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"

	chat_module "github.com/ethanbaker/chatbot/internal/api/modules/chat"
	health_module "github.com/ethanbaker/chatbot/internal/api/modules/health"
)

// NewEngine builds the gin engine with CORS and every module's routes
func NewEngine(cfg *utils.Config, orchestrator *chat.Orchestrator) *gin.Engine {
	// Add app level settings/routes
	engine := gin.Default()
	engine.NoRoute(api_utils.NoRouteHandler)

	// Add trusted proxies
	engine.SetTrustedProxies(nil)

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	origins := cfg.GetList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"OPTIONS", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           12 * time.Hour,
	}))

	health_module.RegisterRoot(engine)

	// Base group '/api' for all API routes
	baseGroup := engine.Group("/api")

	// Adding custom modules
	health_module.RegisterRoutes(baseGroup)
	chat_module.RegisterRoutes(baseGroup, orchestrator)

	return engine
}

// NewSessionStore picks the session backend. MySQL is used when MYSQL_DATABASE is set, otherwise
// sessions live in memory. The returned function releases the backend
func NewSessionStore(cfg *utils.Config) (*session.Store, func() error, error) {
	dbName := cfg.Get("MYSQL_DATABASE")
	if dbName == "" {
		log.Println("[API]: MYSQL_DATABASE not set, using in-memory session store (sessions will not persist across restarts)")
		return session.NewInMemoryStore(), func() error { return nil }, nil
	}

	// Create MySQL config
	dbConfig := mysql.Config{
		User:      cfg.Get("MYSQL_USER"),
		Passwd:    cfg.Get("MYSQL_PASSWORD"),
		Net:       "tcp",
		Addr:      fmt.Sprintf("%s:%s", cfg.GetWithDefault("MYSQL_HOST", "localhost"), cfg.GetWithDefault("MYSQL_PORT", "3306")),
		DBName:    dbName,
		ParseTime: true,
	}

	backend, err := session.NewMySqlBackend(dbConfig.FormatDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	return session.NewStore(backend), backend.Close, nil
}

// NewProvider creates the OpenAI completion provider from config
func NewProvider(cfg *utils.Config) (*provider.OpenAIProvider, error) {
	return provider.NewOpenAIProvider(provider.OpenAIOptions{
		APIKey:     cfg.Get("OPENAI_API_KEY"),
		BaseURL:    cfg.Get("OPENAI_BASE_URL"),
		Timeout:    cfg.GetDurationWithDefault("OPENAI_TIMEOUT", 0),
		MaxRetries: cfg.GetIntWithDefault("OPENAI_MAX_RETRIES", 0),
	})
}

// statsSchedule returns the cron schedule for the stats reporter. An explicitly blank value disables it
func statsSchedule(cfg *utils.Config) string {
	if !cfg.Has("SESSION_STATS_SCHEDULE") {
		return chat_module.DefaultStatsSchedule
	}
	return strings.TrimSpace(cfg.Get("SESSION_STATS_SCHEDULE"))
}

// Start builds every component from config and serves the API until SIGINT/SIGTERM
func Start(cfg *utils.Config) {
	// Initialized configuration settings
	port := cfg.GetWithDefault("API_PORT", "8000")

	settings, err := chat.LoadSettings(cfg)
	if err != nil {
		log.Fatalf("[API]: Failed to load chat settings: %v", err)
	}

	store, closeStore, err := NewSessionStore(cfg)
	if err != nil {
		log.Fatalf("[API]: %v", err)
	}
	defer closeStore()

	completions, err := NewProvider(cfg)
	if err != nil {
		log.Fatalf("[API]: Failed to initialize completion provider: %v", err)
	}

	orchestrator := chat.NewOrchestrator(store, completions, settings)
	log.Printf("[API]: Using model %s, trim window %d, unknown sessions: %s", settings.Params.Model, settings.MaxMessages, settings.UnknownSession)

	stats, err := chat_module.StartStatsReporter(statsSchedule(cfg), orchestrator)
	if err != nil {
		log.Fatalf("[API]: Failed to start stats reporter: %v", err)
	}
	defer stats.Stop()

	server := &http.Server{
		Addr:    ":" + port,
		Handler: NewEngine(cfg, orchestrator),
	}

	// Serve until interrupted, then drain in-flight requests
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("[API]: Failed to start server: ", err)
		}
	}()
	log.Printf("[API]: Listening on :%s", port)

	<-ctx.Done()
	log.Println("[API]: Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API]: Graceful shutdown failed: %v", err)
	}
}
